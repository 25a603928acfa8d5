// Package redislist feeds market update triggers pushed onto a Redis list into the
// in-process queue. Producers RPUSH a market id; the listener BLPOPs it.
package redislist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/champstock/internal/adapters/mq/queue"
	"github.com/okian/champstock/pkg/logger"
	"github.com/okian/champstock/pkg/metrics"
)

// Source tags triggers that arrived through Redis.
const Source = "redis"

const (
	defaultPollTimeout = 5 * time.Second
	errorBackoff       = time.Second
)

// Enqueuer is the part of the queue the listener needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Trigger) (bool, error)
}

// Listener pops market ids from a list until its context ends.
type Listener struct {
	client  redis.UniversalClient
	list    string
	queue   Enqueuer
	timeout time.Duration
	log     logger.Logger
}

// Option configures a Listener.
type Option func(*Listener)

// WithPollTimeout sets how long one BLPOP blocks.
func WithPollTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Listener) {
		if log != nil {
			l.log = log
		}
	}
}

// NewListener creates a listener on list.
func NewListener(client redis.UniversalClient, list string, q Enqueuer, opts ...Option) *Listener {
	l := &Listener{client: client, list: list, queue: q, timeout: defaultPollTimeout, log: logger.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	l.log.Info(ctx, "redis trigger listener started", logger.String("list", l.list))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		res, err := l.client.BLPop(ctx, l.timeout, l.list).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			metrics.RecordErrorByComponent("redis_trigger", "pop")
			l.log.Error(ctx, "blpop failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorBackoff):
			}
			continue
		}
		// BLPOP answers [list, value].
		if len(res) == 2 {
			l.handle(ctx, res[1])
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	id, err := ParseMarketID(payload)
	if err != nil {
		metrics.RecordErrorByComponent("redis_trigger", "bad_payload")
		l.log.Warn(ctx, "dropping trigger", logger.String("payload", payload), logger.Error(err))
		return
	}
	coalesced, err := l.queue.Enqueue(ctx, queue.Trigger{MarketID: id, Source: Source})
	if err != nil {
		l.log.Error(ctx, "enqueue failed", logger.Int64("market_id", id), logger.Error(err))
		return
	}
	l.log.Debug(ctx, "trigger accepted", logger.Int64("market_id", id), logger.Bool("coalesced", coalesced))
}

// ParseMarketID reads a positive decimal market id.
func ParseMarketID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("market id %q: %w", s, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("market id %d must be positive", id)
	}
	return id, nil
}

// Push appends a trigger for marketID to list.
func Push(ctx context.Context, client redis.UniversalClient, list string, marketID int64) error {
	if err := client.RPush(ctx, list, strconv.FormatInt(marketID, 10)).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", list, err)
	}
	return nil
}
