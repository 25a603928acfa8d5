package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store with one market", t, func() {
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		now := base
		s := repository.NewMemoryStore(repository.WithClock(func() time.Time { return now }))

		id, err := s.CreateMarket(ctx, model.Market{Name: "LCS", Tier: "pro",
			Multipliers: model.MultiplierTable{Default: 1.5}})
		So(err, ShouldBeNil)
		slot, err := s.AddPlayer(ctx, id, "Faker#KR1", model.ChampionPool{"Ahri", "Azir"})
		So(err, ShouldBeNil)

		Convey("LoadMarket returns the market and roster", func() {
			m, roster, err := s.LoadMarket(ctx, id)
			So(err, ShouldBeNil)
			So(m.Multipliers.Default, ShouldEqual, 1.5)
			So(len(roster), ShouldEqual, 1)
			So(roster[0].Pool, ShouldResemble, model.ChampionPool{"Ahri", "Azir"})
		})

		Convey("Unknown markets are reported", func() {
			_, _, err := s.LoadMarket(ctx, 99)
			So(errors.Is(err, repository.ErrMarketNotFound), ShouldBeTrue)
			_, err = s.AddPlayer(ctx, 99, "x#y", model.ChampionPool{"Ahri"})
			So(errors.Is(err, repository.ErrMarketNotFound), ShouldBeTrue)
		})

		Convey("Empty pools are rejected", func() {
			_, err := s.AddPlayer(ctx, id, "x#y", nil)
			So(errors.Is(err, repository.ErrEmptyPool), ShouldBeTrue)
		})

		Convey("Seeded pairs quote the IPO record", func() {
			q, err := s.CurrentQuote(ctx, slot.ID, "Ahri")
			So(err, ShouldBeNil)
			So(q.Price, ShouldEqual, model.IPOPrice)
			So(q.IPO, ShouldBeFalse)
		})

		Convey("Unseeded pairs fall back to the IPO default", func() {
			q, err := s.CurrentQuote(ctx, slot.ID, "Zed")
			So(err, ShouldBeNil)
			So(q, ShouldResemble, model.IPOQuote())
		})

		Convey("When a game is committed", func() {
			now = base.Add(time.Hour)
			rec := model.StockValueRecord{MarketID: id, MarketPlayerID: slot.ID, PlayerTag: slot.Tag,
				Champion: "Ahri", Price: 12.4, Score: 8, GameID: "NA1_1"}
			g := model.ProcessedGame{MarketPlayerID: slot.ID, GameID: "NA1_1", PlayerTag: slot.Tag, Champion: "Ahri"}
			So(s.CommitGame(ctx, rec, g), ShouldBeNil)

			Convey("The quote and the ledger reflect it", func() {
				q, _ := s.CurrentQuote(ctx, slot.ID, "Ahri")
				So(q.Price, ShouldEqual, 12.4)
				So(q.GameID, ShouldEqual, "NA1_1")
				ok, _ := s.Exists(ctx, slot.ID, "NA1_1")
				So(ok, ShouldBeTrue)
				So(s.ProcessedCount(), ShouldEqual, 1)
			})

			Convey("A second commit of the same game writes nothing", func() {
				rec.Price = 99
				err := s.CommitGame(ctx, rec, g)
				So(errors.Is(err, ledger.ErrAlreadyProcessed), ShouldBeTrue)
				q, _ := s.CurrentQuote(ctx, slot.ID, "Ahri")
				So(q.Price, ShouldEqual, 12.4)
			})

			Convey("History is ordered and filtered by start", func() {
				all, err := s.History(ctx, slot.ID, "Ahri", repository.AllTime)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 2)
				So(all[0].Price, ShouldEqual, model.IPOPrice)
				So(all[1].Price, ShouldEqual, 12.4)

				recent, _ := s.History(ctx, slot.ID, "Ahri", base.Add(30*time.Minute))
				So(len(recent), ShouldEqual, 1)
			})
		})

		Convey("Mark alone records the pair", func() {
			So(s.Mark(ctx, model.ProcessedGame{MarketPlayerID: slot.ID, GameID: "NA1_7"}), ShouldBeNil)
			ok, _ := s.Exists(ctx, slot.ID, "NA1_7")
			So(ok, ShouldBeTrue)
			So(s.Close(), ShouldBeNil)
		})
	})
}

func TestPeriodStart(t *testing.T) {
	Convey("Given a fixed now", t, func() {
		now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
		cases := map[string]time.Time{
			"1d":  now.AddDate(0, 0, -1),
			"1w":  now.AddDate(0, 0, -7),
			"":    now.AddDate(0, 0, -7),
			"1m":  now.AddDate(0, 0, -30),
			"YTD": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			"all": repository.AllTime,
		}
		for period, want := range cases {
			got, err := repository.PeriodStart(period, now)
			So(err, ShouldBeNil)
			So(got.Equal(want), ShouldBeTrue)
		}
		_, err := repository.PeriodStart("2y", now)
		So(errors.Is(err, repository.ErrInvalidPeriod), ShouldBeTrue)
	})
}
