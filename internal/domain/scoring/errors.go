package scoring

import "errors"

// Sentinel errors for scoring.
var (
	// ErrNoModel means no model exists for the role; the game is skipped, not failed.
	ErrNoModel = errors.New("no model for role")
	// ErrLoadModel wraps any artifact read or validation failure. Fatal at startup.
	ErrLoadModel = errors.New("load model failed")
	// ErrFeatureCount means the vector length does not match the canonical feature order.
	ErrFeatureCount = errors.New("feature count mismatch")
	// ErrPredict wraps a predictor failure.
	ErrPredict = errors.New("predict failed")
)
