// Package seed loads market and roster fixtures from YAML and writes them through a
// RosterWriter. Roster management proper belongs to an external service; fixtures
// exist for local runs and demos.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/domain/model"
	"github.com/okian/champstock/pkg/logger"
)

// ErrInvalidFixture is returned for fixtures that fail validation.
var ErrInvalidFixture = errors.New("invalid fixture")

// Fixture is the root of a seed file.
type Fixture struct {
	Markets []Market `koanf:"markets"`
}

// Market is one market with its roster.
type Market struct {
	ID          int64              `koanf:"id"`
	Name        string             `koanf:"name"`
	Tier        string             `koanf:"tier"`
	Multipliers map[string]float64 `koanf:"multipliers"`
	Players     []Player           `koanf:"players"`
}

// Player is one roster slot.
type Player struct {
	Tag  string   `koanf:"tag"`
	Pool []string `koanf:"pool"`
}

// LoadFile parses a YAML fixture from path.
func LoadFile(path string) (Fixture, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Fixture{}, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return unmarshal(k)
}

// Parse reads a YAML fixture from memory.
func Parse(b []byte) (Fixture, error) {
	k := koanf.New(".")
	if err := k.Load(bytesProvider(b), yaml.Parser()); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return unmarshal(k)
}

// bytesProvider serves an in-memory document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("bytesProvider does not support Read")
}

func unmarshal(k *koanf.Koanf) (Fixture, error) {
	var f Fixture
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return f, f.Validate()
}

// Validate checks tags and pools before anything is written.
func (f Fixture) Validate() error {
	for i, m := range f.Markets {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: market %d has no name", ErrInvalidFixture, i)
		}
		for _, p := range m.Players {
			name, line, ok := strings.Cut(p.Tag, "#")
			if !ok || name == "" || line == "" {
				return fmt.Errorf("%w: market %q: tag %q is not name#tag", ErrInvalidFixture, m.Name, p.Tag)
			}
			if len(p.Pool) == 0 {
				return fmt.Errorf("%w: market %q: %s has an empty pool", ErrInvalidFixture, m.Name, p.Tag)
			}
		}
	}
	return nil
}

// multipliers converts the fixture map into the market table. A missing default is 1.0.
func (m Market) multipliers() model.MultiplierTable {
	t := model.NewMultiplierTable()
	for label, v := range m.Multipliers {
		if label == model.DefaultMultiplierKey {
			t.Default = v
			continue
		}
		if t.Labels == nil {
			t.Labels = make(map[string]float64, len(m.Multipliers))
		}
		t.Labels[label] = v
	}
	return t
}

// Result lists what Apply created.
type Result struct {
	MarketIDs []int64
	Slots     []model.MarketPlayer
}

// Apply writes every market and slot. Each new slot gets IPO records for its pool.
func Apply(ctx context.Context, w repository.RosterWriter, f Fixture, log logger.Logger) (Result, error) {
	if log == nil {
		log = logger.Nop()
	}
	var res Result
	for _, m := range f.Markets {
		id, err := w.CreateMarket(ctx, model.Market{
			ID:          m.ID,
			Name:        m.Name,
			Tier:        m.Tier,
			Multipliers: m.multipliers(),
		})
		if err != nil {
			return res, fmt.Errorf("create market %q: %w", m.Name, err)
		}
		res.MarketIDs = append(res.MarketIDs, id)
		for _, p := range m.Players {
			slot, err := w.AddPlayer(ctx, id, p.Tag, model.ChampionPool(p.Pool))
			if err != nil {
				return res, fmt.Errorf("add %s to market %d: %w", p.Tag, id, err)
			}
			res.Slots = append(res.Slots, slot)
		}
		log.Info(ctx, "market seeded",
			logger.Int64("market_id", id),
			logger.String("name", m.Name),
			logger.Int("players", len(m.Players)))
	}
	return res, nil
}
