package repository

import (
	"fmt"
	"strings"
	"time"
)

// AllTime is the start of the "all" history period.
var AllTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// PeriodStart maps a history period (1d, 1w, 1m, ytd, all) to its start time.
// An empty period means 1w.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "1d":
		return now.AddDate(0, 0, -1), nil
	case "", "1w":
		return now.AddDate(0, 0, -7), nil
	case "1m":
		return now.AddDate(0, 0, -30), nil
	case "ytd":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), nil
	case "all":
		return AllTime, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}
