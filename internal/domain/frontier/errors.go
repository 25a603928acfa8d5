package frontier

import "errors"

// ErrPanic marks a scan that was aborted by a recovered panic.
var ErrPanic = errors.New("scan panicked")
