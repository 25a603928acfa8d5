package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrCycleInProgress is returned when another cycle holds the market's lock.
	ErrCycleInProgress = errors.New("update cycle already in progress")
	// ErrChampionNotInPool is returned for price reads on a champion the slot does not track.
	ErrChampionNotInPool = errors.New("champion not in pool")
	// ErrNotStarted is returned when triggers arrive before Start.
	ErrNotStarted = errors.New("service not started")
)
