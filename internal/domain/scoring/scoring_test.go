package scoring

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/champstock/internal/domain/features"
	"github.com/okian/champstock/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func constant(v float64) Predictor {
	return PredictorFunc(func([]float64) (float64, error) { return v, nil })
}

func vec() []float64 { return make([]float64, len(features.Names)) }

func TestRegistryScore(t *testing.T) {
	Convey("Given a registry with a Mid model", t, func() {
		ctx := context.Background()

		Convey("In-range outputs pass through", func() {
			r := NewRegistry(WithModel(model.RoleMid, constant(7.5)))
			res, err := r.Score(ctx, model.RoleMid, vec())
			So(err, ShouldBeNil)
			So(res.Score, ShouldEqual, 7.5)
			So(res.Role, ShouldEqual, model.RoleMid)
		})

		Convey("Outputs are clamped to [0, 10]", func() {
			for raw, want := range map[float64]float64{-3: 0, 14: 10, 10: 10, 0: 0} {
				r := NewRegistry(WithModel(model.RoleMid, constant(raw)))
				res, err := r.Score(ctx, model.RoleMid, vec())
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, want)
				So(res.Raw, ShouldEqual, raw)
			}
		})

		Convey("NaN clamps to the minimum", func() {
			So(Clamp(math.NaN()), ShouldEqual, MinScore)
		})

		Convey("An unknown role has no model", func() {
			r := NewRegistry(WithModel(model.RoleMid, constant(5)))
			_, err := r.Score(ctx, model.RoleUnknown, vec())
			So(errors.Is(err, ErrNoModel), ShouldBeTrue)
			_, err = r.Score(ctx, model.RoleTop, vec())
			So(errors.Is(err, ErrNoModel), ShouldBeTrue)
		})

		Convey("A short vector is rejected", func() {
			r := NewRegistry(WithModel(model.RoleMid, constant(5)))
			_, err := r.Score(ctx, model.RoleMid, []float64{1, 2})
			So(errors.Is(err, ErrFeatureCount), ShouldBeTrue)
		})

		Convey("Predictor errors are wrapped", func() {
			boom := PredictorFunc(func([]float64) (float64, error) { return 0, errors.New("boom") })
			r := NewRegistry(WithModel(model.RoleMid, boom))
			_, err := r.Score(ctx, model.RoleMid, vec())
			So(errors.Is(err, ErrPredict), ShouldBeTrue)
		})
	})
}

func TestRegistryEnsure(t *testing.T) {
	Convey("Given a lazy loader", t, func() {
		ctx := context.Background()
		calls := 0

		Convey("It runs once and its models become available", func() {
			r := NewRegistry(WithLoader(func(context.Context) (map[model.Role]Predictor, error) {
				calls++
				return map[model.Role]Predictor{model.RoleTop: constant(3)}, nil
			}))
			So(r.Ensure(ctx), ShouldBeNil)
			So(r.Ensure(ctx), ShouldBeNil)
			So(calls, ShouldEqual, 1)
			So(r.Roles(), ShouldResemble, []model.Role{model.RoleTop})
			res, err := r.Score(ctx, model.RoleTop, vec())
			So(err, ShouldBeNil)
			So(res.Score, ShouldEqual, 3)
		})

		Convey("A failed load is remembered", func() {
			r := NewRegistry(WithLoader(func(context.Context) (map[model.Role]Predictor, error) {
				calls++
				return nil, ErrLoadModel
			}))
			So(errors.Is(r.Ensure(ctx), ErrLoadModel), ShouldBeTrue)
			_, err := r.Score(ctx, model.RoleTop, vec())
			So(errors.Is(err, ErrLoadModel), ShouldBeTrue)
			So(calls, ShouldEqual, 1)
		})
	})
}

func writeArtifact(t *testing.T, dir string, role model.Role, body string) {
	if err := os.WriteFile(filepath.Join(dir, role.ArtifactName()), []byte(body), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}

const linearBody = `{"kind":"linear","intercept":5,"coefficients":[0.5,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,1]}`

func TestArtifacts(t *testing.T) {
	Convey("Given model artifacts on disk", t, func() {
		dir := t.TempDir()

		Convey("A full set loads and predicts", func() {
			for _, role := range model.Roles {
				writeArtifact(t, dir, role, linearBody)
			}
			r := NewRegistry(WithDir(dir))
			x := vec()
			x[0] = 2  // kda
			x[16] = 1 // win_loss
			res, err := r.Score(context.Background(), model.RoleSupport, x)
			So(err, ShouldBeNil)
			So(res.Raw, ShouldEqual, 7.0)
		})

		Convey("A missing role is a load error", func() {
			writeArtifact(t, dir, model.RoleTop, linearBody)
			_, err := LoadDir(dir)
			So(errors.Is(err, ErrLoadModel), ShouldBeTrue)
		})

		Convey("A malformed file is a load error", func() {
			p := filepath.Join(dir, "bad.json")
			So(os.WriteFile(p, []byte("{"), 0o600), ShouldBeNil)
			_, err := LoadFile(p)
			So(errors.Is(err, ErrLoadModel), ShouldBeTrue)
		})
	})
}

func TestCompile(t *testing.T) {
	Convey("Given artifact definitions", t, func() {
		Convey("A declared feature order reorders the input", func() {
			names := append([]string{}, features.Names...)
			names[0], names[16] = names[16], names[0] // model trained with win_loss first
			coef := make([]float64, len(names))
			coef[0] = 4 // weight on win_loss
			p, err := Artifact{Kind: KindLinear, Features: names, Coefficients: coef}.Compile()
			So(err, ShouldBeNil)
			x := vec()
			x[16] = 1
			y, _ := p.Predict(x)
			So(y, ShouldEqual, 4.0)
		})

		Convey("Unknown or duplicate feature names fail", func() {
			names := append([]string{}, features.Names...)
			names[3] = "bogus"
			_, err := Artifact{Kind: KindLinear, Features: names, Coefficients: vec()}.Compile()
			So(err, ShouldNotBeNil)
			names[3] = names[2]
			_, err = Artifact{Kind: KindLinear, Features: names, Coefficients: vec()}.Compile()
			So(err, ShouldNotBeNil)
		})

		Convey("A tree ensemble sums leaves onto the base score", func() {
			a := Artifact{
				Kind:      KindTreeEnsemble,
				BaseScore: 5,
				Trees: []Tree{
					{Nodes: []Node{
						{Feature: 16, Threshold: 0.5, Left: 1, Right: 2},
						{Leaf: true, Value: -1},
						{Leaf: true, Value: 2},
					}},
					{Nodes: []Node{{Leaf: true, Value: 0.5}}},
				},
			}
			p, err := a.Compile()
			So(err, ShouldBeNil)
			x := vec()
			y, _ := p.Predict(x)
			So(y, ShouldEqual, 4.5)
			x[16] = 1
			y, _ = p.Predict(x)
			So(y, ShouldEqual, 7.5)
		})

		Convey("Trees with backward or dangling children are rejected", func() {
			a := Artifact{Kind: KindTreeEnsemble, Trees: []Tree{{Nodes: []Node{
				{Feature: 0, Threshold: 1, Left: 0, Right: 1},
				{Leaf: true},
			}}}}
			_, err := a.Compile()
			So(err, ShouldNotBeNil)
			a.Trees[0].Nodes[0] = Node{Feature: 99, Left: 1, Right: 1}
			_, err = a.Compile()
			So(err, ShouldNotBeNil)
		})

		Convey("Bad shapes fail", func() {
			_, err := Artifact{Kind: KindLinear, Coefficients: []float64{1}}.Compile()
			So(err, ShouldNotBeNil)
			_, err = Artifact{Kind: KindTreeEnsemble}.Compile()
			So(err, ShouldNotBeNil)
			_, err = Artifact{Kind: "svm"}.Compile()
			So(err, ShouldNotBeNil)
		})
	})
}
