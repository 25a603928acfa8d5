// Package sqlite provides the SQLite-backed pipeline store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
)

// Store wraps a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ repository.Store        = (*Store)(nil)
	_ repository.RosterWriter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for IPO and mark timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens or creates the database at path. ":memory:" gives a private in-memory database.
func New(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps :memory: on one connection
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA foreign_keys=ON`, `PRAGMA busy_timeout=5000`} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			name               TEXT NOT NULL DEFAULT '',
			tier               TEXT NOT NULL DEFAULT 'free',
			config_multipliers TEXT NOT NULL DEFAULT '{}',
			last_refreshed_at  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS market_players (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			market_id  INTEGER NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
			player_tag TEXT NOT NULL,
			UNIQUE (market_id, player_tag)
		)`,
		`CREATE TABLE IF NOT EXISTS player_champions (
			market_player_id INTEGER NOT NULL REFERENCES market_players(id) ON DELETE CASCADE,
			champion_name    TEXT NOT NULL,
			position         INTEGER NOT NULL,
			PRIMARY KEY (market_player_id, champion_name)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_values (
			id               TEXT PRIMARY KEY,
			market_id        INTEGER NOT NULL,
			market_player_id INTEGER NOT NULL REFERENCES market_players(id) ON DELETE CASCADE,
			player_tag       TEXT NOT NULL,
			champion         TEXT NOT NULL,
			stock_value      REAL NOT NULL,
			model_score      REAL NOT NULL,
			game_id          TEXT NOT NULL DEFAULT '',
			timestamp        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_values_pair ON stock_values(market_player_id, champion, timestamp)`,
		`CREATE TABLE IF NOT EXISTS processed_games (
			market_player_id INTEGER NOT NULL REFERENCES market_players(id) ON DELETE CASCADE,
			game_id          TEXT NOT NULL,
			player_tag       TEXT NOT NULL,
			champion         TEXT NOT NULL,
			processed_at     INTEGER NOT NULL,
			PRIMARY KEY (market_player_id, game_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateMarket implements repository.RosterWriter.
func (s *Store) CreateMarket(ctx context.Context, m model.Market) (int64, error) {
	mult, err := m.Multipliers.Normalized().MarshalJSON()
	if err != nil {
		return 0, err
	}
	tier := m.Tier
	if tier == "" {
		tier = "free"
	}
	var res sql.Result
	if m.ID != 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO markets (id, name, tier, config_multipliers, last_refreshed_at) VALUES (?,?,?,?,?)`,
			m.ID, m.Name, tier, string(mult), unixNano(m.LastRefreshedAt))
	} else {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO markets (name, tier, config_multipliers, last_refreshed_at) VALUES (?,?,?,?)`,
			m.Name, tier, string(mult), unixNano(m.LastRefreshedAt))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert market: %w", err)
	}
	return res.LastInsertId()
}

// AddPlayer implements repository.RosterWriter.
func (s *Store) AddPlayer(ctx context.Context, marketID int64, tag string, pool model.ChampionPool) (model.MarketPlayer, error) {
	if len(pool) == 0 {
		return model.MarketPlayer{}, repository.ErrEmptyPool
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.MarketPlayer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM markets WHERE id = ?`, marketID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MarketPlayer{}, fmt.Errorf("%w: %d", repository.ErrMarketNotFound, marketID)
		}
		return model.MarketPlayer{}, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO market_players (market_id, player_tag) VALUES (?,?)`, marketID, tag)
	if err != nil {
		return model.MarketPlayer{}, fmt.Errorf("failed to insert player: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.MarketPlayer{}, err
	}
	at := unixNano(s.now())
	for i, champ := range pool {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO player_champions (market_player_id, champion_name, position) VALUES (?,?,?)`,
			id, champ, i); err != nil {
			return model.MarketPlayer{}, fmt.Errorf("failed to insert champion: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_values
				(id, market_id, market_player_id, player_tag, champion, stock_value, model_score, game_id, timestamp)
			VALUES (?,?,?,?,?,?,?,'',?)`,
			uuid.NewString(), marketID, id, tag, champ, model.IPOPrice, model.IPOScore, at); err != nil {
			return model.MarketPlayer{}, fmt.Errorf("failed to insert IPO record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.MarketPlayer{}, fmt.Errorf("failed to commit: %w", err)
	}
	return model.MarketPlayer{ID: id, MarketID: marketID, Tag: tag, Pool: append(model.ChampionPool(nil), pool...)}, nil
}

// LoadMarket implements repository.MarketReader.
func (s *Store) LoadMarket(ctx context.Context, marketID int64) (model.Market, []model.MarketPlayer, error) {
	var (
		m         model.Market
		mult      string
		refreshed int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tier, config_multipliers, last_refreshed_at FROM markets WHERE id = ?`, marketID,
	).Scan(&m.ID, &m.Name, &m.Tier, &mult, &refreshed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Market{}, nil, fmt.Errorf("%w: %d", repository.ErrMarketNotFound, marketID)
	}
	if err != nil {
		return model.Market{}, nil, fmt.Errorf("failed to load market: %w", err)
	}
	if m.Multipliers, err = model.ParseMultipliers([]byte(mult)); err != nil {
		return model.Market{}, nil, fmt.Errorf("market %d: %w", marketID, err)
	}
	if refreshed > 0 {
		m.LastRefreshedAt = time.Unix(0, refreshed).UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.id, mp.player_tag, pc.champion_name
		FROM market_players mp
		JOIN player_champions pc ON pc.market_player_id = mp.id
		WHERE mp.market_id = ?
		ORDER BY mp.id, pc.position`, marketID)
	if err != nil {
		return model.Market{}, nil, fmt.Errorf("failed to load roster: %w", err)
	}
	defer rows.Close()

	var roster []model.MarketPlayer
	for rows.Next() {
		var (
			id    int64
			tag   string
			champ string
		)
		if err := rows.Scan(&id, &tag, &champ); err != nil {
			return model.Market{}, nil, err
		}
		if n := len(roster); n == 0 || roster[n-1].ID != id {
			roster = append(roster, model.MarketPlayer{ID: id, MarketID: marketID, Tag: tag})
		}
		last := &roster[len(roster)-1]
		last.Pool = append(last.Pool, champ)
	}
	if err := rows.Err(); err != nil {
		return model.Market{}, nil, err
	}
	return m, roster, nil
}

// CurrentQuote implements repository.PriceReader.
func (s *Store) CurrentQuote(ctx context.Context, marketPlayerID int64, champion string) (model.Quote, error) {
	var (
		q  model.Quote
		ts int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT stock_value, model_score, game_id, timestamp
		FROM stock_values
		WHERE market_player_id = ? AND champion = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT 1`, marketPlayerID, champion).Scan(&q.Price, &q.Score, &q.GameID, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IPOQuote(), nil
	}
	if err != nil {
		return model.Quote{}, fmt.Errorf("failed to read quote: %w", err)
	}
	q.Timestamp = time.Unix(0, ts).UTC()
	return q, nil
}

// History implements repository.PriceReader.
func (s *Store) History(ctx context.Context, marketPlayerID int64, champion string, since time.Time) ([]model.StockValueRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, market_player_id, player_tag, champion, stock_value, model_score, game_id, timestamp
		FROM stock_values
		WHERE market_player_id = ? AND champion = ? AND timestamp >= ?
		ORDER BY timestamp ASC, rowid ASC`, marketPlayerID, champion, unixNano(since))
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()
	var out []model.StockValueRecord
	for rows.Next() {
		var (
			r  model.StockValueRecord
			ts int64
		)
		if err := rows.Scan(&r.ID, &r.MarketID, &r.MarketPlayerID, &r.PlayerTag, &r.Champion,
			&r.Price, &r.Score, &r.GameID, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Exists implements ledger.Ledger.
func (s *Store) Exists(ctx context.Context, marketPlayerID int64, gameID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_games WHERE market_player_id = ? AND game_id = ?`, marketPlayerID, gameID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return true, nil
}

// Mark implements ledger.Ledger.
func (s *Store) Mark(ctx context.Context, g model.ProcessedGame) error {
	return s.mark(ctx, s.db, g)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) mark(ctx context.Context, db execer, g model.ProcessedGame) error {
	if g.ProcessedAt.IsZero() {
		g.ProcessedAt = s.now()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO processed_games (market_player_id, game_id, player_tag, champion, processed_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (market_player_id, game_id) DO NOTHING`,
		g.MarketPlayerID, g.GameID, g.PlayerTag, g.Champion, unixNano(g.ProcessedAt))
	if err != nil {
		return fmt.Errorf("failed to mark game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrAlreadyProcessed
	}
	return nil
}

// CommitGame implements repository.Store: price insert and ledger mark share one transaction.
func (s *Store) CommitGame(ctx context.Context, rec model.StockValueRecord, g model.ProcessedGame) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_values
			(id, market_id, market_player_id, player_tag, champion, stock_value, model_score, game_id, timestamp)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.MarketID, rec.MarketPlayerID, rec.PlayerTag, rec.Champion,
		rec.Price, rec.Score, rec.GameID, unixNano(rec.Timestamp)); err != nil {
		return fmt.Errorf("failed to insert stock value: %w", err)
	}
	if err := s.mark(ctx, tx, g); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
