package repository

import "errors"

// Sentinel kinds for persistence errors.
var (
	ErrMarketNotFound = errors.New("market not found")
	ErrPlayerNotFound = errors.New("market player not found")
	ErrEmptyPool      = errors.New("champion pool must not be empty")
	ErrInvalidPeriod  = errors.New("invalid history period")
)
