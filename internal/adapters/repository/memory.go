package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
)

type pairKey struct {
	slot     int64
	champion string
}

// MemoryStore keeps everything in process. It backs tests and the memory storage driver.
type MemoryStore struct {
	mu         sync.RWMutex
	markets    map[int64]model.Market
	rosters    map[int64][]model.MarketPlayer
	prices     map[pairKey][]model.StockValueRecord
	ledger     *ledger.Memory
	nextMarket int64
	nextPlayer int64

	now   func() time.Time
	newID func() string
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ RosterWriter = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		markets: make(map[int64]model.Market),
		rosters: make(map[int64][]model.MarketPlayer),
		prices:  make(map[pairKey][]model.StockValueRecord),
		ledger:  ledger.NewMemory(),
		now:     time.Now,
		newID:   defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMarket implements RosterWriter. A zero ID is assigned the next free id.
func (s *MemoryStore) CreateMarket(_ context.Context, m model.Market) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		s.nextMarket++
		m.ID = s.nextMarket
	} else if m.ID > s.nextMarket {
		s.nextMarket = m.ID
	}
	m.Multipliers = m.Multipliers.Normalized()
	s.markets[m.ID] = m
	return m.ID, nil
}

// AddPlayer implements RosterWriter.
func (s *MemoryStore) AddPlayer(_ context.Context, marketID int64, tag string, pool model.ChampionPool) (model.MarketPlayer, error) {
	if len(pool) == 0 {
		return model.MarketPlayer{}, ErrEmptyPool
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[marketID]; !ok {
		return model.MarketPlayer{}, fmt.Errorf("%w: %d", ErrMarketNotFound, marketID)
	}
	s.nextPlayer++
	p := model.MarketPlayer{ID: s.nextPlayer, MarketID: marketID, Tag: tag, Pool: append(model.ChampionPool(nil), pool...)}
	s.rosters[marketID] = append(s.rosters[marketID], p)
	at := s.now()
	for _, champ := range pool {
		k := pairKey{p.ID, champ}
		s.prices[k] = append(s.prices[k], model.StockValueRecord{
			ID: s.newID(), MarketID: marketID, MarketPlayerID: p.ID, PlayerTag: tag, Champion: champ,
			Price: model.IPOPrice, Score: model.IPOScore, Timestamp: at,
		})
	}
	return p, nil
}

// LoadMarket implements MarketReader.
func (s *MemoryStore) LoadMarket(_ context.Context, marketID int64) (model.Market, []model.MarketPlayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[marketID]
	if !ok {
		return model.Market{}, nil, fmt.Errorf("%w: %d", ErrMarketNotFound, marketID)
	}
	roster := make([]model.MarketPlayer, 0, len(s.rosters[marketID]))
	for _, p := range s.rosters[marketID] {
		if len(p.Pool) == 0 {
			continue
		}
		p.Pool = append(model.ChampionPool(nil), p.Pool...)
		roster = append(roster, p)
	}
	return m, roster, nil
}

// CurrentQuote implements PriceReader.
func (s *MemoryStore) CurrentQuote(_ context.Context, marketPlayerID int64, champion string) (model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.prices[pairKey{marketPlayerID, champion}]
	if len(recs) == 0 {
		return model.IPOQuote(), nil
	}
	latest := recs[0]
	for _, r := range recs[1:] {
		if !r.Timestamp.Before(latest.Timestamp) {
			latest = r
		}
	}
	return model.QuoteOf(latest), nil
}

// History implements PriceReader.
func (s *MemoryStore) History(_ context.Context, marketPlayerID int64, champion string, since time.Time) ([]model.StockValueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StockValueRecord
	for _, r := range s.prices[pairKey{marketPlayerID, champion}] {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Exists implements ledger.Ledger.
func (s *MemoryStore) Exists(ctx context.Context, marketPlayerID int64, gameID string) (bool, error) {
	return s.ledger.Exists(ctx, marketPlayerID, gameID)
}

// Mark implements ledger.Ledger.
func (s *MemoryStore) Mark(ctx context.Context, g model.ProcessedGame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ProcessedAt.IsZero() {
		g.ProcessedAt = s.now()
	}
	return s.ledger.Mark(ctx, g)
}

// CommitGame implements Store. Both writes happen under the store lock.
func (s *MemoryStore) CommitGame(ctx context.Context, rec model.StockValueRecord, g model.ProcessedGame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ProcessedAt.IsZero() {
		g.ProcessedAt = s.now()
	}
	if err := s.ledger.Mark(ctx, g); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = g.ProcessedAt
	}
	k := pairKey{rec.MarketPlayerID, rec.Champion}
	s.prices[k] = append(s.prices[k], rec)
	return nil
}

// ProcessedCount returns the number of marked games.
func (s *MemoryStore) ProcessedCount() int64 {
	return s.ledger.Size()
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
