package lock

import "errors"

var (
	// ErrHeld is returned when another holder owns the key.
	ErrHeld = errors.New("lock held")
	// ErrNotHeld is returned on release of a lock that expired or was taken over.
	ErrNotHeld = errors.New("lock not held")
)
