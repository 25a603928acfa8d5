package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/adapters/repository/sqlite"
	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
	"github.com/okian/champstock/internal/domain/pricing"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSQLiteStore(t *testing.T) {
	Convey("Given an in-memory sqlite store", t, func() {
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		s, err := sqlite.New(":memory:", sqlite.WithClock(func() time.Time { return base }))
		So(err, ShouldBeNil)
		defer s.Close()

		id, err := s.CreateMarket(ctx, model.Market{Name: "LCK", Tier: "pro",
			Multipliers: model.MultiplierTable{Default: 1.2, Labels: map[string]float64{"finals": 2}}})
		So(err, ShouldBeNil)
		slot, err := s.AddPlayer(ctx, id, "Faker#KR1", model.ChampionPool{"Azir", "Ahri", "Orianna"})
		So(err, ShouldBeNil)

		Convey("LoadMarket returns config and the ordered pool", func() {
			m, roster, err := s.LoadMarket(ctx, id)
			So(err, ShouldBeNil)
			So(m.Tier, ShouldEqual, "pro")
			So(m.Multipliers.Default, ShouldEqual, 1.2)
			So(m.Multipliers.Labels["finals"], ShouldEqual, 2.0)
			So(len(roster), ShouldEqual, 1)
			So(roster[0].ID, ShouldEqual, slot.ID)
			So(roster[0].Pool, ShouldResemble, model.ChampionPool{"Azir", "Ahri", "Orianna"})
		})

		Convey("A market without players has an empty roster", func() {
			other, err := s.CreateMarket(ctx, model.Market{Name: "empty"})
			So(err, ShouldBeNil)
			m, roster, err := s.LoadMarket(ctx, other)
			So(err, ShouldBeNil)
			So(m.Multipliers.Default, ShouldEqual, 1.0)
			So(roster, ShouldBeEmpty)
			So(pricing.NewEngine().NextFor(m, 10, 8), ShouldAlmostEqual, 12.4, 1e-9)
		})

		Convey("Unknown markets are reported", func() {
			_, _, err := s.LoadMarket(ctx, 404)
			So(errors.Is(err, repository.ErrMarketNotFound), ShouldBeTrue)
			_, err = s.AddPlayer(ctx, 404, "a#b", model.ChampionPool{"Ahri"})
			So(errors.Is(err, repository.ErrMarketNotFound), ShouldBeTrue)
		})

		Convey("Seeded pairs quote their IPO record and unknown pairs the default", func() {
			q, err := s.CurrentQuote(ctx, slot.ID, "Ahri")
			So(err, ShouldBeNil)
			So(q.Price, ShouldEqual, model.IPOPrice)
			So(q.IPO, ShouldBeFalse)
			q, err = s.CurrentQuote(ctx, slot.ID, "Teemo")
			So(err, ShouldBeNil)
			So(q.IPO, ShouldBeTrue)
			So(q.Price, ShouldEqual, model.IPOPrice)
		})

		Convey("When a game is committed", func() {
			rec := model.StockValueRecord{MarketID: id, MarketPlayerID: slot.ID, PlayerTag: slot.Tag,
				Champion: "Ahri", Price: 12.4, Score: 8, GameID: "KR_1", Timestamp: base.Add(time.Hour)}
			g := model.ProcessedGame{MarketPlayerID: slot.ID, GameID: "KR_1", PlayerTag: slot.Tag, Champion: "Ahri"}
			So(s.CommitGame(ctx, rec, g), ShouldBeNil)

			Convey("The price and the mark are both visible", func() {
				q, _ := s.CurrentQuote(ctx, slot.ID, "Ahri")
				So(q.Price, ShouldEqual, 12.4)
				So(q.GameID, ShouldEqual, "KR_1")
				So(q.Timestamp.Equal(base.Add(time.Hour)), ShouldBeTrue)
				ok, err := s.Exists(ctx, slot.ID, "KR_1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})

			Convey("Re-committing the same game rolls back the price", func() {
				rec.Price = 50
				rec.Timestamp = base.Add(2 * time.Hour)
				err := s.CommitGame(ctx, rec, g)
				So(errors.Is(err, ledger.ErrAlreadyProcessed), ShouldBeTrue)
				q, _ := s.CurrentQuote(ctx, slot.ID, "Ahri")
				So(q.Price, ShouldEqual, 12.4)
				hist, _ := s.History(ctx, slot.ID, "Ahri", repository.AllTime)
				So(len(hist), ShouldEqual, 2)
			})

			Convey("History honors the start time", func() {
				hist, err := s.History(ctx, slot.ID, "Ahri", base.Add(time.Minute))
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 1)
				So(hist[0].GameID, ShouldEqual, "KR_1")
			})
		})

		Convey("Mark alone is idempotency-checked", func() {
			g := model.ProcessedGame{MarketPlayerID: slot.ID, GameID: "KR_9"}
			So(s.Mark(ctx, g), ShouldBeNil)
			So(errors.Is(s.Mark(ctx, g), ledger.ErrAlreadyProcessed), ShouldBeTrue)
		})

		Convey("Concurrent commits of one game leave exactly one price", func() {
			var ok atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					rec := model.StockValueRecord{MarketID: id, MarketPlayerID: slot.ID, PlayerTag: slot.Tag,
						Champion: "Azir", Price: float64(10 + i), Score: 5, GameID: "KR_2", Timestamp: base.Add(time.Minute)}
					if s.CommitGame(ctx, rec, model.ProcessedGame{MarketPlayerID: slot.ID, GameID: "KR_2"}) == nil {
						ok.Add(1)
					}
				}(i)
			}
			wg.Wait()
			So(ok.Load(), ShouldEqual, 1)
			hist, _ := s.History(ctx, slot.ID, "Azir", base.Add(time.Second))
			So(len(hist), ShouldEqual, 1)
		})
	})
}

func TestSQLiteFile(t *testing.T) {
	Convey("Data survives a reopen", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "data", "stocks.db")
		s, err := sqlite.New(path)
		So(err, ShouldBeNil)
		id, _ := s.CreateMarket(ctx, model.Market{Name: "m"})
		slot, _ := s.AddPlayer(ctx, id, "a#b", model.ChampionPool{"Ahri"})
		So(s.Mark(ctx, model.ProcessedGame{MarketPlayerID: slot.ID, GameID: "g1"}), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		s, err = sqlite.New(path)
		So(err, ShouldBeNil)
		defer s.Close()
		ok, err := s.Exists(ctx, slot.ID, "g1")
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
	})
}
