package riot

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client.
var (
	// ErrRateLimited is returned when the provider kept answering 429 past the retry budget.
	ErrRateLimited = errors.New("rate limited by match data provider")
	// ErrInvalidTag is returned for player tags not shaped like "name#tag".
	ErrInvalidTag = errors.New("invalid player tag")
)

// StatusError is a non-2xx, non-429 provider response.
type StatusError struct {
	Code     int
	Endpoint string
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("riot %s: unexpected status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("riot %s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}
