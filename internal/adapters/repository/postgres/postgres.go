// Package postgres provides the pgx-backed pipeline store over the backend's
// markets, market_players, player_champions, stock_values and processed_games tables.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
)

// Schema creates the tables when missing. Production databases already carry them.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS markets (
		id                 BIGSERIAL PRIMARY KEY,
		name               TEXT NOT NULL DEFAULT '',
		tier               TEXT NOT NULL DEFAULT 'free',
		config_multipliers JSONB NOT NULL DEFAULT '{}'::jsonb,
		last_refreshed_at  TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS market_players (
		id         BIGSERIAL PRIMARY KEY,
		market_id  BIGINT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
		player_tag TEXT NOT NULL,
		UNIQUE (market_id, player_tag)
	)`,
	`CREATE TABLE IF NOT EXISTS player_champions (
		market_player_id BIGINT NOT NULL REFERENCES market_players(id) ON DELETE CASCADE,
		champion_name    TEXT NOT NULL,
		position         INT NOT NULL DEFAULT 0,
		PRIMARY KEY (market_player_id, champion_name)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_values (
		id               UUID PRIMARY KEY,
		market_id        BIGINT NOT NULL,
		market_player_id BIGINT NOT NULL REFERENCES market_players(id) ON DELETE CASCADE,
		player_tag       TEXT NOT NULL,
		champion         TEXT NOT NULL,
		stock_value      DOUBLE PRECISION NOT NULL,
		model_score      DOUBLE PRECISION NOT NULL,
		game_id          TEXT NOT NULL DEFAULT '',
		timestamp        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_values_pair ON stock_values(market_player_id, champion, timestamp)`,
	`CREATE TABLE IF NOT EXISTS processed_games (
		market_player_id BIGINT NOT NULL REFERENCES market_players(id) ON DELETE CASCADE,
		game_id          TEXT NOT NULL,
		player_tag       TEXT NOT NULL,
		champion         TEXT NOT NULL,
		processed_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (market_player_id, game_id)
	)`,
}

// Store is a pgxpool-backed repository.Store.
type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var (
	_ repository.Store        = (*Store)(nil)
	_ repository.RosterWriter = (*Store)(nil)
)

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, now: time.Now}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
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
	var id int64
	if m.ID != 0 {
		err = s.db.QueryRow(ctx,
			`INSERT INTO markets (id, name, tier, config_multipliers) VALUES ($1,$2,$3,$4) RETURNING id`,
			m.ID, m.Name, tier, string(mult)).Scan(&id)
	} else {
		err = s.db.QueryRow(ctx,
			`INSERT INTO markets (name, tier, config_multipliers) VALUES ($1,$2,$3) RETURNING id`,
			m.Name, tier, string(mult)).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert market: %w", err)
	}
	return id, nil
}

// AddPlayer implements repository.RosterWriter.
func (s *Store) AddPlayer(ctx context.Context, marketID int64, tag string, pool model.ChampionPool) (model.MarketPlayer, error) {
	if len(pool) == 0 {
		return model.MarketPlayer{}, repository.ErrEmptyPool
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.MarketPlayer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO market_players (market_id, player_tag)
		SELECT id, $2 FROM markets WHERE id = $1
		RETURNING id`, marketID, tag).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MarketPlayer{}, fmt.Errorf("%w: %d", repository.ErrMarketNotFound, marketID)
	}
	if err != nil {
		return model.MarketPlayer{}, fmt.Errorf("failed to insert player: %w", err)
	}

	at := s.now()
	batch := &pgx.Batch{}
	for i, champ := range pool {
		batch.Queue(`INSERT INTO player_champions (market_player_id, champion_name, position) VALUES ($1,$2,$3)`, id, champ, i)
		batch.Queue(`
			INSERT INTO stock_values (id, market_id, market_player_id, player_tag, champion, stock_value, model_score, game_id, timestamp)
			VALUES ($1,$2,$3,$4,$5,$6,$7,'',$8)`,
			uuid.New(), marketID, id, tag, champ, model.IPOPrice, model.IPOScore, at)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return model.MarketPlayer{}, fmt.Errorf("failed to seed pool: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.MarketPlayer{}, fmt.Errorf("failed to commit: %w", err)
	}
	return model.MarketPlayer{ID: id, MarketID: marketID, Tag: tag, Pool: append(model.ChampionPool(nil), pool...)}, nil
}

// LoadMarket implements repository.MarketReader.
func (s *Store) LoadMarket(ctx context.Context, marketID int64) (model.Market, []model.MarketPlayer, error) {
	var (
		m         model.Market
		mult      []byte
		refreshed *time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, name, tier, config_multipliers, last_refreshed_at FROM markets WHERE id = $1`, marketID,
	).Scan(&m.ID, &m.Name, &m.Tier, &mult, &refreshed)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Market{}, nil, fmt.Errorf("%w: %d", repository.ErrMarketNotFound, marketID)
	}
	if err != nil {
		return model.Market{}, nil, fmt.Errorf("failed to load market: %w", err)
	}
	if m.Multipliers, err = model.ParseMultipliers(mult); err != nil {
		return model.Market{}, nil, fmt.Errorf("market %d: %w", marketID, err)
	}
	if refreshed != nil {
		m.LastRefreshedAt = *refreshed
	}

	rows, err := s.db.Query(ctx, `
		SELECT mp.id, mp.player_tag, array_agg(pc.champion_name ORDER BY pc.position, pc.champion_name)
		FROM market_players mp
		JOIN player_champions pc ON pc.market_player_id = mp.id
		WHERE mp.market_id = $1
		GROUP BY mp.id, mp.player_tag
		ORDER BY mp.id`, marketID)
	if err != nil {
		return model.Market{}, nil, fmt.Errorf("failed to load roster: %w", err)
	}
	defer rows.Close()

	var roster []model.MarketPlayer
	for rows.Next() {
		p := model.MarketPlayer{MarketID: marketID}
		var champs []string
		if err := rows.Scan(&p.ID, &p.Tag, &champs); err != nil {
			return model.Market{}, nil, err
		}
		p.Pool = champs
		roster = append(roster, p)
	}
	if err := rows.Err(); err != nil {
		return model.Market{}, nil, err
	}
	return m, roster, nil
}

// CurrentQuote implements repository.PriceReader.
func (s *Store) CurrentQuote(ctx context.Context, marketPlayerID int64, champion string) (model.Quote, error) {
	var q model.Quote
	err := s.db.QueryRow(ctx, `
		SELECT stock_value, model_score, game_id, timestamp
		FROM stock_values
		WHERE market_player_id = $1 AND champion = $2
		ORDER BY timestamp DESC
		LIMIT 1`, marketPlayerID, champion).Scan(&q.Price, &q.Score, &q.GameID, &q.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.IPOQuote(), nil
	}
	if err != nil {
		return model.Quote{}, fmt.Errorf("failed to read quote: %w", err)
	}
	return q, nil
}

// History implements repository.PriceReader.
func (s *Store) History(ctx context.Context, marketPlayerID int64, champion string, since time.Time) ([]model.StockValueRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, market_id, market_player_id, player_tag, champion, stock_value, model_score, game_id, timestamp
		FROM stock_values
		WHERE market_player_id = $1 AND champion = $2 AND timestamp >= $3
		ORDER BY timestamp ASC`, marketPlayerID, champion, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()
	var out []model.StockValueRecord
	for rows.Next() {
		var r model.StockValueRecord
		if err := rows.Scan(&r.ID, &r.MarketID, &r.MarketPlayerID, &r.PlayerTag, &r.Champion,
			&r.Price, &r.Score, &r.GameID, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Exists implements ledger.Ledger.
func (s *Store) Exists(ctx context.Context, marketPlayerID int64, gameID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_games WHERE market_player_id = $1 AND game_id = $2)`,
		marketPlayerID, gameID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return ok, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Mark implements ledger.Ledger.
func (s *Store) Mark(ctx context.Context, g model.ProcessedGame) error {
	return s.mark(ctx, s.db, g)
}

func (s *Store) mark(ctx context.Context, db execer, g model.ProcessedGame) error {
	if g.ProcessedAt.IsZero() {
		g.ProcessedAt = s.now()
	}
	tag, err := db.Exec(ctx, `
		INSERT INTO processed_games (market_player_id, game_id, player_tag, champion, processed_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (market_player_id, game_id) DO NOTHING`,
		g.MarketPlayerID, g.GameID, g.PlayerTag, g.Champion, g.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to mark game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAlreadyProcessed
	}
	return nil
}

// CommitGame implements repository.Store: price insert and ledger mark share one transaction.
func (s *Store) CommitGame(ctx context.Context, rec model.StockValueRecord, g model.ProcessedGame) error {
	id := uuid.New()
	if rec.ID != "" {
		parsed, err := uuid.Parse(rec.ID)
		if err != nil {
			return fmt.Errorf("invalid record id %q: %w", rec.ID, err)
		}
		id = parsed
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_values (id, market_id, market_player_id, player_tag, champion, stock_value, model_score, game_id, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		id, rec.MarketID, rec.MarketPlayerID, rec.PlayerTag, rec.Champion, rec.Price, rec.Score, rec.GameID, rec.Timestamp); err != nil {
		return fmt.Errorf("failed to insert stock value: %w", err)
	}
	if err := s.mark(ctx, tx, g); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
