// Package scoring maps a feature vector to a performance score in [0, 10]
// using one predictor per role.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/okian/champstock/internal/domain/features"
	"github.com/okian/champstock/internal/domain/model"
)

// Score bounds.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Predictor maps a vector in features.Names order to a raw score.
type Predictor interface {
	Predict(x []float64) (float64, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(x []float64) (float64, error)

// Predict calls f.
func (f PredictorFunc) Predict(x []float64) (float64, error) { return f(x) }

// Loader produces the role models. It runs at most once per Registry.
type Loader func(ctx context.Context) (map[model.Role]Predictor, error)

// Result is a scored game.
type Result struct {
	Role  model.Role
	Raw   float64
	Score float64 // Raw clamped to [MinScore, MaxScore]
}

// Option configures a Registry.
type Option func(*Registry)

// WithModel registers a predictor for role.
func WithModel(role model.Role, p Predictor) Option {
	return func(r *Registry) {
		if p != nil {
			r.models[role] = p
		}
	}
}

// WithLoader sets the loader used by Ensure.
func WithLoader(l Loader) Option {
	return func(r *Registry) {
		r.loader = l
	}
}

// WithDir loads artifacts from dir on first use.
func WithDir(dir string) Option {
	return WithLoader(func(context.Context) (map[model.Role]Predictor, error) {
		return LoadDir(dir)
	})
}

// Registry holds the role models. It is read-only once loaded and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	models  map[model.Role]Predictor
	loader  Loader
	once    sync.Once
	loadErr error
}

// NewRegistry creates a registry from options.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{models: make(map[model.Role]Predictor)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure runs the loader once. Later calls return the first outcome.
func (r *Registry) Ensure(ctx context.Context) error {
	r.once.Do(func() {
		if r.loader == nil {
			return
		}
		loaded, err := r.loader(ctx)
		if err != nil {
			r.loadErr = err
			return
		}
		r.mu.Lock()
		for role, p := range loaded {
			r.models[role] = p
		}
		r.mu.Unlock()
	})
	return r.loadErr
}

// Roles returns the roles that currently have a model.
func (r *Registry) Roles() []model.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Role, 0, len(r.models))
	for _, role := range model.Roles {
		if _, ok := r.models[role]; ok {
			out = append(out, role)
		}
	}
	return out
}

// Score predicts and clamps. A role without a model yields ErrNoModel.
func (r *Registry) Score(ctx context.Context, role model.Role, x []float64) (Result, error) {
	if err := r.Ensure(ctx); err != nil {
		return Result{}, err
	}
	r.mu.RLock()
	p, ok := r.models[role]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoModel, role)
	}
	if len(x) != len(features.Names) {
		return Result{}, fmt.Errorf("%w: got %d want %d", ErrFeatureCount, len(x), len(features.Names))
	}
	raw, err := p.Predict(x)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrPredict, role, err)
	}
	return Result{Role: role, Raw: raw, Score: Clamp(raw)}, nil
}

// Clamp bounds a raw prediction to [MinScore, MaxScore]. NaN maps to MinScore.
func Clamp(raw float64) float64 {
	if math.IsNaN(raw) {
		return MinScore
	}
	return math.Max(MinScore, math.Min(MaxScore, raw))
}
