package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/okian/champstock/internal/adapters/repository"
	"github.com/okian/champstock/internal/adapters/repository/postgres"
	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Runs only against a disposable database named by CHAMPSTOCK_TEST_POSTGRES_DSN.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHAMPSTOCK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHAMPSTOCK_TEST_POSTGRES_DSN not set")
	}

	Convey("Given a postgres store", t, func() {
		ctx := context.Background()
		s, err := postgres.Open(ctx, dsn)
		So(err, ShouldBeNil)
		defer s.Close()

		id, err := s.CreateMarket(ctx, model.Market{Name: "it", Multipliers: model.MultiplierTable{Default: 1.1}})
		So(err, ShouldBeNil)
		tag := fmt.Sprintf("it%d#NA1", time.Now().UnixNano())
		slot, err := s.AddPlayer(ctx, id, tag, model.ChampionPool{"Jinx", "Ashe"})
		So(err, ShouldBeNil)

		Convey("The roster round-trips in pool order", func() {
			m, roster, err := s.LoadMarket(ctx, id)
			So(err, ShouldBeNil)
			So(m.Multipliers.Default, ShouldEqual, 1.1)
			So(roster, ShouldHaveLength, 1)
			So(roster[0].Pool, ShouldResemble, model.ChampionPool{"Jinx", "Ashe"})
		})

		Convey("A market without multipliers prices at 1.0", func() {
			other, err := s.CreateMarket(ctx, model.Market{Name: "plain"})
			So(err, ShouldBeNil)
			m, _, err := s.LoadMarket(ctx, other)
			So(err, ShouldBeNil)
			So(m.Multipliers.Default, ShouldEqual, 1.0)
		})

		Convey("Commit is exactly-once per game", func() {
			rec := model.StockValueRecord{MarketID: id, MarketPlayerID: slot.ID, PlayerTag: tag,
				Champion: "Jinx", Price: 11, Score: 6.5, GameID: "NA1_it", Timestamp: time.Now().Add(time.Minute)}
			g := model.ProcessedGame{MarketPlayerID: slot.ID, GameID: "NA1_it", PlayerTag: tag, Champion: "Jinx"}
			So(s.CommitGame(ctx, rec, g), ShouldBeNil)
			So(errors.Is(s.CommitGame(ctx, rec, g), ledger.ErrAlreadyProcessed), ShouldBeTrue)

			q, err := s.CurrentQuote(ctx, slot.ID, "Jinx")
			So(err, ShouldBeNil)
			So(q.Price, ShouldEqual, 11.0)
			hist, err := s.History(ctx, slot.ID, "Jinx", repository.AllTime)
			So(err, ShouldBeNil)
			So(hist, ShouldHaveLength, 2)
		})

		Convey("Unknown markets are reported", func() {
			_, _, err := s.LoadMarket(ctx, -1)
			So(errors.Is(err, repository.ErrMarketNotFound), ShouldBeTrue)
		})
	})
}
