// Package pricing folds a performance score into the previous stock price.
package pricing

import (
	"math"

	"github.com/okian/champstock/internal/domain/model"
)

// Default update law constants.
const (
	DefaultAlpha       = 0.4
	DefaultFloor       = 0.1
	DefaultNeutral     = 5.0
	DefaultSensitivity = 2.0
)

// Option configures an Engine.
type Option func(*Engine)

// WithAlpha sets the smoothing weight given to the raw price. Values outside (0, 1] are ignored.
func WithAlpha(alpha float64) Option {
	return func(e *Engine) {
		if alpha > 0 && alpha <= 1 {
			e.alpha = alpha
		}
	}
}

// WithFloor sets the minimum price. Non-positive values are ignored.
func WithFloor(floor float64) Option {
	return func(e *Engine) {
		if floor > 0 {
			e.floor = floor
		}
	}
}

// Engine applies the single-step smoothing rule
//
//	raw  = current + (score*multiplier - neutral) * sensitivity
//	next = max(floor, alpha*raw + (1-alpha)*current)
type Engine struct {
	alpha       float64
	floor       float64
	neutral     float64
	sensitivity float64
}

// NewEngine returns an engine with the default constants.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		alpha:       DefaultAlpha,
		floor:       DefaultFloor,
		neutral:     DefaultNeutral,
		sensitivity: DefaultSensitivity,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Next computes the new price from the current price, a clamped score and the market multiplier.
func (e *Engine) Next(current, score, multiplier float64) float64 {
	adjusted := score * multiplier
	raw := current + (adjusted-e.neutral)*e.sensitivity
	return math.Max(e.floor, e.alpha*raw+(1-e.alpha)*current)
}

// NextFor prices against the market's default multiplier.
func (e *Engine) NextFor(m model.Market, current, score float64) float64 {
	return e.Next(current, score, m.Multipliers.Default)
}
