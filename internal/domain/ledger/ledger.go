// Package ledger defines the idempotency ledger: the set of (slot, game) pairs that
// have already been folded into a price.
package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/okian/champstock/internal/domain/model"
)

// ErrAlreadyProcessed is returned when marking a pair that is already recorded.
var ErrAlreadyProcessed = errors.New("game already processed for slot")

// Ledger records processed games per roster slot. Entries are never removed by the pipeline.
type Ledger interface {
	// Exists reports whether gameID was already processed for the slot.
	Exists(ctx context.Context, marketPlayerID int64, gameID string) (bool, error)
	// Mark records the pair. Marking an existing pair returns ErrAlreadyProcessed.
	Mark(ctx context.Context, g model.ProcessedGame) error
}

type key struct {
	slot int64
	game string
}

// Memory is an in-process Ledger.
type Memory struct {
	mu   sync.RWMutex
	seen map[key]model.ProcessedGame
	size atomic.Int64
}

var _ Ledger = (*Memory)(nil)

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{seen: make(map[key]model.ProcessedGame)}
}

// Exists implements Ledger.
func (m *Memory) Exists(_ context.Context, marketPlayerID int64, gameID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[key{marketPlayerID, gameID}]
	return ok, nil
}

// Mark implements Ledger. The check and the insert happen under one lock.
func (m *Memory) Mark(_ context.Context, g model.ProcessedGame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{g.MarketPlayerID, g.GameID}
	if _, ok := m.seen[k]; ok {
		return ErrAlreadyProcessed
	}
	m.seen[k] = g
	m.size.Add(1)
	return nil
}

// Size returns the number of recorded pairs.
func (m *Memory) Size() int64 {
	return m.size.Load()
}
