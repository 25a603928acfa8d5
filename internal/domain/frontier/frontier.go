// Package frontier walks one roster slot's recent match history from newest to oldest
// and prices at most one new game per invocation.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/champstock/internal/domain/features"
	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
	"github.com/okian/champstock/internal/domain/pricing"
	"github.com/okian/champstock/internal/domain/scoring"
	"github.com/okian/champstock/pkg/logger"
	"github.com/okian/champstock/pkg/metrics"
)

// State is the terminal state of one scan.
type State string

// Terminal states.
const (
	Processed State = "processed"
	NoNewGame State = "no_new_game"
	Failed    State = "failed"
)

// Skip reasons reported to metrics.
const (
	skipNotParticipant = "not_participant"
	skipNotInPool      = "not_in_pool"
	skipExtraction     = "extraction"
	skipNoModel        = "no_model"
)

// Gateway is the slice of the match data provider a scan needs.
type Gateway interface {
	ResolvePUUID(ctx context.Context, tag string) (string, error)
	MatchIDs(ctx context.Context, puuid string, count int) ([]string, error)
	Match(ctx context.Context, matchID string) (*model.MatchDetail, *model.MatchTimeline, error)
}

// Store is the slice of persistence a scan needs.
type Store interface {
	ledger.Ledger
	CurrentQuote(ctx context.Context, marketPlayerID int64, champion string) (model.Quote, error)
	CommitGame(ctx context.Context, rec model.StockValueRecord, g model.ProcessedGame) error
}

// Scorer turns a feature vector into a clamped score.
type Scorer interface {
	Score(ctx context.Context, role model.Role, x []float64) (scoring.Result, error)
}

// Outcome reports how a scan ended.
type Outcome struct {
	MarketPlayerID int64
	PlayerTag      string
	State          State
	GameID         string
	Champion       string
	Score          float64
	Price          float64
	Skipped        int
	Err            error
}

// Scanner is stateless between scans and safe for concurrent use.
type Scanner struct {
	store      Store
	scorer     Scorer
	pricer     *pricing.Engine
	extractor  *features.Extractor
	matchCount int
	now        func() time.Time
	newID      func() string
	log        logger.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithMatchCount sets how many recent ids are listed per scan.
func WithMatchCount(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.matchCount = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPricing replaces the default pricing engine.
func WithPricing(e *pricing.Engine) Option {
	return func(s *Scanner) {
		if e != nil {
			s.pricer = e
		}
	}
}

// NewScanner builds a scanner.
func NewScanner(store Store, scorer Scorer, opts ...Option) *Scanner {
	s := &Scanner{
		store:      store,
		scorer:     scorer,
		pricer:     pricing.NewEngine(),
		matchCount: 20,
		now:        time.Now,
		newID:      uuid.NewString,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.extractor = features.NewExtractor(s.log)
	return s
}

// Scan runs the frontier algorithm for one slot. It never panics and never returns
// an error directly: failures end in the Failed state with Err set.
func (s *Scanner) Scan(ctx context.Context, gw Gateway, market model.Market, player model.MarketPlayer) (out Outcome) {
	start := time.Now()
	log := s.log.With(
		logger.Int64("market_id", market.ID),
		logger.Int64("market_player_id", player.ID),
		logger.String("player", player.Tag))

	out = Outcome{MarketPlayerID: player.ID, PlayerTag: player.Tag}
	defer func() {
		if r := recover(); r != nil {
			out.State = Failed
			out.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if out.State == Failed {
			log.Error(ctx, "scan failed", logger.Error(out.Err))
			metrics.RecordErrorByComponent("frontier", "scan_failed")
		}
		metrics.RecordScan(string(out.State), time.Since(start))
	}()

	state, err := s.scan(ctx, gw, market, player, log, &out)
	out.State = state
	out.Err = err
	return out
}

func (s *Scanner) scan(ctx context.Context, gw Gateway, market model.Market, player model.MarketPlayer, log logger.Logger, out *Outcome) (State, error) {
	puuid, err := gw.ResolvePUUID(ctx, player.Tag)
	if err != nil {
		return Failed, fmt.Errorf("resolve %s: %w", player.Tag, err)
	}
	ids, err := gw.MatchIDs(ctx, puuid, s.matchCount)
	if err != nil {
		return Failed, fmt.Errorf("list matches: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return Failed, err
		}
		seen, err := s.store.Exists(ctx, player.ID, id)
		if err != nil {
			return Failed, fmt.Errorf("ledger lookup %s: %w", id, err)
		}
		if seen {
			log.Debug(ctx, "frontier reached", logger.String("game_id", id))
			return NoNewGame, nil
		}

		detail, timeline, err := gw.Match(ctx, id)
		if err != nil {
			return Failed, fmt.Errorf("fetch match %s: %w", id, err)
		}
		p := detail.Participant(puuid)
		if p == nil {
			s.skip(ctx, log, id, skipNotParticipant, out)
			continue
		}
		if !player.Pool.Contains(p.ChampionName) {
			s.skip(ctx, log, id, skipNotInPool, out)
			continue
		}
		vec, ok := s.extractor.Extract(ctx, detail, timeline, puuid)
		if !ok {
			s.skip(ctx, log, id, skipExtraction, out)
			continue
		}
		res, err := s.scorer.Score(ctx, vec.Role, vec.Values())
		if errors.Is(err, scoring.ErrNoModel) {
			s.skip(ctx, log, id, skipNoModel, out)
			continue
		}
		if err != nil {
			return Failed, fmt.Errorf("score %s: %w", id, err)
		}

		return s.commit(ctx, log, market, player, id, p.ChampionName, res.Score, out)
	}
	return NoNewGame, nil
}

// commit prices the game against the pair's current quote and persists it.
func (s *Scanner) commit(ctx context.Context, log logger.Logger, market model.Market, player model.MarketPlayer,
	gameID, champion string, score float64, out *Outcome) (State, error) {
	quote, err := s.store.CurrentQuote(ctx, player.ID, champion)
	if err != nil {
		return Failed, fmt.Errorf("current price %s: %w", champion, err)
	}
	price := s.pricer.NextFor(market, quote.Price, score)
	now := s.now()

	rec := model.StockValueRecord{
		ID:             s.newID(),
		MarketID:       market.ID,
		MarketPlayerID: player.ID,
		PlayerTag:      player.Tag,
		Champion:       champion,
		Price:          price,
		Score:          score,
		GameID:         gameID,
		Timestamp:      now,
	}
	mark := model.ProcessedGame{
		MarketPlayerID: player.ID,
		GameID:         gameID,
		PlayerTag:      player.Tag,
		Champion:       champion,
		ProcessedAt:    now,
	}
	if err := s.store.CommitGame(ctx, rec, mark); err != nil {
		if errors.Is(err, ledger.ErrAlreadyProcessed) {
			// A concurrent cycle committed this game first.
			log.Warn(ctx, "game committed elsewhere", logger.String("game_id", gameID))
			return NoNewGame, nil
		}
		return Failed, fmt.Errorf("commit %s: %w", gameID, err)
	}

	out.GameID, out.Champion, out.Score, out.Price = gameID, champion, score, price
	metrics.RecordGamePriced(price, score)
	log.Info(ctx, "game priced",
		logger.String("game_id", gameID),
		logger.String("champion", champion),
		logger.Float64("score", score),
		logger.Float64("previous", quote.Price),
		logger.Float64("price", price))
	return Processed, nil
}

func (s *Scanner) skip(ctx context.Context, log logger.Logger, gameID, reason string, out *Outcome) {
	out.Skipped++
	metrics.RecordGameSkipped(reason)
	log.Debug(ctx, "game skipped", logger.String("game_id", gameID), logger.String("reason", reason))
}
