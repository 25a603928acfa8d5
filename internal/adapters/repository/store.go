// Package repository defines the persistence boundary of the pipeline and an
// in-memory implementation. SQL engines live in the sqlite and postgres subpackages.
package repository

import (
	"context"
	"time"

	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
)

// MarketReader loads a market with its roster in one call.
type MarketReader interface {
	// LoadMarket returns ErrMarketNotFound for unknown ids. Players without a
	// champion pool are not returned.
	LoadMarket(ctx context.Context, marketID int64) (model.Market, []model.MarketPlayer, error)
}

// PriceReader answers price queries for one (slot, champion) pair.
type PriceReader interface {
	// CurrentQuote returns the latest record, or the IPO quote when none exists.
	CurrentQuote(ctx context.Context, marketPlayerID int64, champion string) (model.Quote, error)
	// History returns records at or after since, oldest first.
	History(ctx context.Context, marketPlayerID int64, champion string, since time.Time) ([]model.StockValueRecord, error)
}

// Store is everything the update pipeline needs from persistence.
type Store interface {
	MarketReader
	PriceReader
	ledger.Ledger

	// CommitGame appends rec and marks g as one unit. If g is already marked the
	// unit fails with ledger.ErrAlreadyProcessed and rec is not kept.
	CommitGame(ctx context.Context, rec model.StockValueRecord, g model.ProcessedGame) error

	Close() error
}

// RosterWriter seeds markets and roster slots. Roster management proper is owned by
// an external service; this exists for fixtures and local runs.
type RosterWriter interface {
	CreateMarket(ctx context.Context, m model.Market) (int64, error)
	// AddPlayer creates a slot and writes one IPO record per champion in the pool.
	AddPlayer(ctx context.Context, marketID int64, tag string, pool model.ChampionPool) (model.MarketPlayer, error)
}
