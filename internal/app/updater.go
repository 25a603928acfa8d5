package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/champstock/internal/adapters/lock"
	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/domain/frontier"
	"github.com/okian/champstock/pkg/logger"
	"github.com/okian/champstock/pkg/metrics"
)

// Cycle results reported to metrics.
const (
	cycleCompleted      = "completed"
	cycleEmptyRoster    = "empty_roster"
	cycleMarketNotFound = "market_not_found"
	cycleInProgress     = "in_progress"
	cycleError          = "error"
)

// CycleStore is what one cycle reads and writes.
type CycleStore interface {
	repository.MarketReader
	frontier.Store
}

// CycleReport summarizes one UpdateMarket call.
type CycleReport struct {
	MarketID      int64
	MarketMissing bool
	Outcomes      []frontier.Outcome
	Duration      time.Duration
}

// Count returns how many scans ended in state.
func (r CycleReport) Count(state frontier.State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Updater runs market update cycles.
type Updater struct {
	store       CycleStore
	scanner     *frontier.Scanner
	locker      lock.Locker
	gateway     func() frontier.Gateway
	concurrency int
	timeout     time.Duration
	log         logger.Logger
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithLocker replaces the in-process locker.
func WithLocker(l lock.Locker) UpdaterOption {
	return func(u *Updater) {
		if l != nil {
			u.locker = l
		}
	}
}

// WithScanConcurrency bounds concurrent scans in one cycle. Zero means one goroutine per player.
func WithScanConcurrency(n int) UpdaterOption {
	return func(u *Updater) {
		if n >= 0 {
			u.concurrency = n
		}
	}
}

// WithCycleTimeout caps the wall time of one cycle.
func WithCycleTimeout(d time.Duration) UpdaterOption {
	return func(u *Updater) {
		u.timeout = d
	}
}

// WithUpdaterLogger sets the logger.
func WithUpdaterLogger(l logger.Logger) UpdaterOption {
	return func(u *Updater) {
		if l != nil {
			u.log = l
		}
	}
}

// NewUpdater wires an updater. gateway is called once per cycle so every scan in the
// cycle shares one client and one identity cache.
func NewUpdater(store CycleStore, scanner *frontier.Scanner, gateway func() frontier.Gateway, opts ...UpdaterOption) *Updater {
	u := &Updater{
		store:   store,
		scanner: scanner,
		locker:  lock.NewLocal(),
		gateway: gateway,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UpdateMarket runs one cycle: every roster slot is scanned once, concurrently.
// An unknown market or an empty roster is a logged no-op. Scan failures are reported in
// the outcomes and never fail the cycle.
func (u *Updater) UpdateMarket(ctx context.Context, marketID int64) (report CycleReport, err error) {
	start := time.Now()
	report.MarketID = marketID
	result := cycleError
	defer func() {
		report.Duration = time.Since(start)
		metrics.RecordCycle(result, report.Duration)
	}()
	log := u.log.With(logger.Int64("market_id", marketID))

	release, err := u.locker.TryLock(ctx, lock.MarketKey(marketID))
	if errors.Is(err, lock.ErrHeld) {
		result = cycleInProgress
		log.Info(ctx, "cycle already running, trigger dropped")
		return report, fmt.Errorf("%w: market %d", ErrCycleInProgress, marketID)
	}
	if err != nil {
		return report, fmt.Errorf("lock market %d: %w", marketID, err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn(ctx, "release market lock", logger.Error(rerr))
		}
	}()

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	market, roster, err := u.store.LoadMarket(ctx, marketID)
	if errors.Is(err, repository.ErrMarketNotFound) {
		result = cycleMarketNotFound
		report.MarketMissing = true
		log.Warn(ctx, "market not found, nothing to update")
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("load market %d: %w", marketID, err)
	}
	if len(roster) == 0 {
		result = cycleEmptyRoster
		log.Info(ctx, "empty roster, nothing to update")
		return report, nil
	}

	gw := u.gateway()
	report.Outcomes = make([]frontier.Outcome, len(roster))
	var g errgroup.Group
	if u.concurrency > 0 {
		g.SetLimit(u.concurrency)
	}
	for i, player := range roster {
		g.Go(func() error {
			report.Outcomes[i] = u.scanner.Scan(ctx, gw, market, player)
			return nil
		})
	}
	_ = g.Wait()

	result = cycleCompleted
	log.Info(ctx, "cycle finished",
		logger.Int("players", len(roster)),
		logger.Int("processed", report.Count(frontier.Processed)),
		logger.Int("no_new_game", report.Count(frontier.NoNewGame)),
		logger.Int("failed", report.Count(frontier.Failed)),
		logger.Duration("elapsed", time.Since(start)))
	return report, nil
}
