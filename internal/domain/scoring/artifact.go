package scoring

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/champstock/internal/domain/features"
	"github.com/okian/champstock/internal/domain/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Artifact kinds.
const (
	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"
)

// Artifact is the on-disk model description.
//
// Features, when present, names the input order the model was trained on; it must be
// a permutation of features.Names. Trees use "x[feature] < threshold goes left".
type Artifact struct {
	Kind         string    `json:"kind"`
	Features     []string  `json:"features,omitempty"`
	Intercept    float64   `json:"intercept,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty"`
	BaseScore    float64   `json:"base_score,omitempty"`
	Trees        []Tree    `json:"trees,omitempty"`
}

// Tree is one regression tree stored as a flat node list; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split or a leaf.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// LoadDir reads <role>_model.json for every scored role. Any failure aborts the load.
func LoadDir(dir string) (map[model.Role]Predictor, error) {
	out := make(map[model.Role]Predictor, len(model.Roles))
	for _, role := range model.Roles {
		path := filepath.Join(dir, role.ArtifactName())
		p, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		out[role] = p
	}
	return out, nil
}

// LoadFile reads and compiles one artifact.
func LoadFile(path string) (Predictor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadModel, err)
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadModel, path, err)
	}
	p, err := a.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadModel, path, err)
	}
	return p, nil
}

// Compile validates the artifact and returns its predictor.
func (a Artifact) Compile() (Predictor, error) {
	perm, err := permutation(a.Features)
	if err != nil {
		return nil, err
	}
	n := len(features.Names)
	switch a.Kind {
	case KindLinear:
		if len(a.Coefficients) != n {
			return nil, fmt.Errorf("linear model has %d coefficients, want %d", len(a.Coefficients), n)
		}
		return &linear{perm: perm, intercept: a.Intercept, coef: a.Coefficients}, nil
	case KindTreeEnsemble:
		if len(a.Trees) == 0 {
			return nil, errors.New("tree ensemble has no trees")
		}
		for i, t := range a.Trees {
			if err := t.validate(n); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		return &ensemble{perm: perm, base: a.BaseScore, trees: a.Trees}, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}
}

// permutation maps model input position -> canonical index.
func permutation(names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if len(names) != len(features.Names) {
		return nil, fmt.Errorf("artifact lists %d features, want %d", len(names), len(features.Names))
	}
	index := make(map[string]int, len(features.Names))
	for i, n := range features.Names {
		index[n] = i
	}
	perm := make([]int, len(names))
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		j, ok := index[n]
		if !ok {
			return nil, fmt.Errorf("unknown feature %q", n)
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate feature %q", n)
		}
		seen[n] = true
		perm[i] = j
	}
	return perm, nil
}

func reorder(perm []int, x []float64) []float64 {
	if perm == nil {
		return x
	}
	out := make([]float64, len(perm))
	for i, j := range perm {
		out[i] = x[j]
	}
	return out
}

type linear struct {
	perm      []int
	intercept float64
	coef      []float64
}

func (l *linear) Predict(x []float64) (float64, error) {
	in := reorder(l.perm, x)
	y := l.intercept
	for i, c := range l.coef {
		y += c * in[i]
	}
	return y, nil
}

type ensemble struct {
	perm  []int
	base  float64
	trees []Tree
}

func (e *ensemble) Predict(x []float64) (float64, error) {
	in := reorder(e.perm, x)
	y := e.base
	for _, t := range e.trees {
		y += t.eval(in)
	}
	return y, nil
}

// validate checks indexes and that children always point forward, so eval terminates.
func (t Tree) validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		for _, c := range []int{n.Left, n.Right} {
			if c <= i || c >= len(t.Nodes) {
				return fmt.Errorf("node %d: child %d out of range", i, c)
			}
		}
	}
	return nil
}

func (t Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
