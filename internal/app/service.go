// Package service wires the update pipeline (queue, workers, updater) and serves the
// read side of the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/champstock/internal/adapters/mq/queue"
	"github.com/okian/champstock/internal/adapters/mq/worker"
	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/domain/frontier"
	"github.com/okian/champstock/internal/domain/model"
	"github.com/okian/champstock/internal/domain/types"
	"github.com/okian/champstock/pkg/logger"
	"github.com/okian/champstock/pkg/metrics"
)

// Trigger acknowledgement statuses.
const (
	StatusQueued    = "queued"
	StatusCoalesced = "coalesced"
)

// Store is the persistence the service reads from.
type Store interface {
	repository.MarketReader
	repository.PriceReader
}

// Service implements the API dependencies.
type Service struct {
	mu sync.RWMutex

	store   Store
	updater *Updater
	queue   *queue.InMemoryQueue
	pool    *worker.Pool

	workerCount int
	queueSize   int
	now         func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of update workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the trigger queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for history periods.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service.
func New(store Store, updater *Updater, opts ...Option) *Service {
	s := &Service{
		store:       store,
		updater:     updater,
		workerCount: 4,
		queueSize:   1024,
		now:         time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the queue and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.HandlerFunc(s.handle), s.logger.Named("worker"))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "update service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize))
	return nil
}

// Stop closes the queue and waits for running cycles. Pending triggers are dropped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping update service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "update service stopped")
}

// handle is the worker entry point.
func (s *Service) handle(ctx context.Context, t queue.Trigger) error {
	_, err := s.updater.UpdateMarket(ctx, t.MarketID)
	if errors.Is(err, ErrCycleInProgress) {
		return nil
	}
	return err
}

// TriggerUpdate queues an update cycle for marketID.
func (s *Service) TriggerUpdate(ctx context.Context, marketID int64, source string) (types.TriggerAck, error) {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return types.TriggerAck{}, ErrNotStarted
	}
	coalesced, err := q.Enqueue(ctx, queue.Trigger{MarketID: marketID, Source: source})
	if err != nil {
		return types.TriggerAck{}, fmt.Errorf("enqueue market %d: %w", marketID, err)
	}
	ack := types.TriggerAck{MarketID: marketID, Status: StatusQueued}
	if coalesced {
		ack.Status = StatusCoalesced
	}
	return ack, nil
}

// Enqueue implements the trigger listener's queue contract by forwarding to the
// running queue.
func (s *Service) Enqueue(ctx context.Context, t queue.Trigger) (bool, error) {
	ack, err := s.TriggerUpdate(ctx, t.MarketID, t.Source)
	return ack.Status == StatusCoalesced, err
}

// UpdateNow runs one cycle synchronously, bypassing the queue.
func (s *Service) UpdateNow(ctx context.Context, marketID int64) (types.CycleSummary, error) {
	report, err := s.updater.UpdateMarket(ctx, marketID)
	return Summarize(report), err
}

// Summarize condenses a cycle report.
func Summarize(r CycleReport) types.CycleSummary {
	return types.CycleSummary{
		MarketID:      r.MarketID,
		Players:       len(r.Outcomes),
		Processed:     r.Count(frontier.Processed),
		NoNewGame:     r.Count(frontier.NoNewGame),
		Failed:        r.Count(frontier.Failed),
		MarketMissing: r.MarketMissing,
		Duration:      r.Duration,
	}
}

// slot finds a roster slot and checks the champion is tracked by it.
func (s *Service) slot(ctx context.Context, marketID, slotID int64, champion string) (model.MarketPlayer, error) {
	_, roster, err := s.store.LoadMarket(ctx, marketID)
	if err != nil {
		return model.MarketPlayer{}, err
	}
	for _, p := range roster {
		if p.ID != slotID {
			continue
		}
		if !p.Pool.Contains(champion) {
			return model.MarketPlayer{}, fmt.Errorf("%w: %s", ErrChampionNotInPool, champion)
		}
		return p, nil
	}
	return model.MarketPlayer{}, fmt.Errorf("%w: %d", repository.ErrPlayerNotFound, slotID)
}

// Quote returns the current price of a pair. A pair that was never priced reports the IPO values.
func (s *Service) Quote(ctx context.Context, marketID, slotID int64, champion string) (types.Quote, error) {
	p, err := s.slot(ctx, marketID, slotID, champion)
	if err != nil {
		return types.Quote{}, err
	}
	q, err := s.store.CurrentQuote(ctx, slotID, champion)
	if err != nil {
		return types.Quote{}, err
	}
	out := types.Quote{
		MarketID:       marketID,
		MarketPlayerID: slotID,
		PlayerTag:      p.Tag,
		Champion:       champion,
		Price:          q.Price,
		Score:          q.Score,
		GameID:         q.GameID,
		IPO:            q.IPO,
	}
	if !q.Timestamp.IsZero() {
		ts := q.Timestamp
		out.Timestamp = &ts
	}
	return out, nil
}

// History returns the price series of a pair for period (1d, 1w, 1m, ytd, all).
func (s *Service) History(ctx context.Context, marketID, slotID int64, champion, period string) (types.History, error) {
	since, err := repository.PeriodStart(period, s.now())
	if err != nil {
		return types.History{}, err
	}
	if _, err := s.slot(ctx, marketID, slotID, champion); err != nil {
		return types.History{}, err
	}
	recs, err := s.store.History(ctx, slotID, champion, since)
	if err != nil {
		return types.History{}, err
	}
	if period == "" {
		period = "1w"
	}
	h := types.History{
		MarketID:       marketID,
		MarketPlayerID: slotID,
		Champion:       champion,
		Period:         period,
		Since:          since,
		Points:         make([]types.HistoryPoint, 0, len(recs)),
	}
	for _, r := range recs {
		h.Points = append(h.Points, types.HistoryPoint{Price: r.Price, Score: r.Score, GameID: r.GameID, Timestamp: r.Timestamp})
	}
	return h, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if s.started {
		queueLen := s.queue.Len(context.Background())
		ps := s.pool.Stats()
		stats["queueLength"] = queueLen
		stats["cyclesProcessed"] = ps.Processed
		stats["cyclesFailed"] = ps.Failed
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	return stats
}
