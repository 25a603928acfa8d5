package service

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/champstock/internal/adapters/lock"
	"github.com/okian/champstock/internal/domain/frontier"
)

func TestUpdateMarket(t *testing.T) {
	Convey("Given a market with three players", t, func() {
		ctx := context.Background()
		f := newFixture("a#1", "b#1", "c#1")
		f.gateway.addGame("a#1", "A1", "Ahri")
		f.gateway.addGame("a#1", "A2", "Ahri")
		f.gateway.addGame("b#1", "B1", "Azir")

		Convey("One cycle prices at most one game per player", func() {
			report, err := f.updater.UpdateMarket(ctx, f.marketID)
			So(err, ShouldBeNil)
			So(len(report.Outcomes), ShouldEqual, 3)
			So(report.Count(frontier.Processed), ShouldEqual, 2)
			So(report.Count(frontier.NoNewGame), ShouldEqual, 1)
			So(f.store.ProcessedCount(), ShouldEqual, 2)

			q, _ := f.store.CurrentQuote(ctx, f.slots[0].ID, "Ahri")
			So(q.GameID, ShouldEqual, "A2")
			So(q.Price, ShouldAlmostEqual, 12.4, 1e-9)

			Convey("A repeat cycle with no new games writes nothing", func() {
				again, err := f.updater.UpdateMarket(ctx, f.marketID)
				So(err, ShouldBeNil)
				So(again.Count(frontier.Processed), ShouldEqual, 0)
				So(f.store.ProcessedCount(), ShouldEqual, 2)
			})

			Convey("A new game is picked up by the next cycle", func() {
				f.gateway.addGame("c#1", "C1", "Ahri")
				next, err := f.updater.UpdateMarket(ctx, f.marketID)
				So(err, ShouldBeNil)
				So(next.Count(frontier.Processed), ShouldEqual, 1)
				So(f.store.ProcessedCount(), ShouldEqual, 3)
			})
		})

		Convey("A failing player does not affect the others", func() {
			f.gateway.broken["puuid-a#1"] = true
			report, err := f.updater.UpdateMarket(ctx, f.marketID)
			So(err, ShouldBeNil)
			So(report.Count(frontier.Failed), ShouldEqual, 1)
			So(report.Count(frontier.Processed), ShouldEqual, 1)
			for _, o := range report.Outcomes {
				if o.State == frontier.Failed {
					So(errors.Is(o.Err, errProviderDown), ShouldBeTrue)
				}
			}
		})

		Convey("Bounded scan concurrency still scans everyone", func() {
			u := NewUpdater(f.store, f.updater.scanner, f.updater.gateway, WithScanConcurrency(1))
			report, err := u.UpdateMarket(ctx, f.marketID)
			So(err, ShouldBeNil)
			So(len(report.Outcomes), ShouldEqual, 3)
			So(report.Count(frontier.Processed), ShouldEqual, 2)
		})
	})

	Convey("Given an unknown market", t, func() {
		f := newFixture()
		report, err := f.updater.UpdateMarket(context.Background(), 999)
		So(err, ShouldBeNil)
		So(report.MarketMissing, ShouldBeTrue)
		So(report.Outcomes, ShouldBeEmpty)
	})

	Convey("Given an empty roster", t, func() {
		f := newFixture()
		report, err := f.updater.UpdateMarket(context.Background(), f.marketID)
		So(err, ShouldBeNil)
		So(report.MarketMissing, ShouldBeFalse)
		So(report.Outcomes, ShouldBeEmpty)
		So(f.gateway.resolved, ShouldEqual, 0)
	})

	Convey("Given a market whose lock is held", t, func() {
		ctx := context.Background()
		f := newFixture("a#1")
		f.gateway.addGame("a#1", "A1", "Ahri")
		locker := lock.NewLocal()
		release, err := locker.TryLock(ctx, lock.MarketKey(f.marketID))
		So(err, ShouldBeNil)
		u := NewUpdater(f.store, f.updater.scanner, f.updater.gateway, WithLocker(locker))

		Convey("The cycle is refused without touching the store", func() {
			_, err := u.UpdateMarket(ctx, f.marketID)
			So(errors.Is(err, ErrCycleInProgress), ShouldBeTrue)
			So(f.store.ProcessedCount(), ShouldEqual, 0)
		})

		Convey("Once released the cycle runs and frees the lock again", func() {
			So(release(ctx), ShouldBeNil)
			report, err := u.UpdateMarket(ctx, f.marketID)
			So(err, ShouldBeNil)
			So(report.Count(frontier.Processed), ShouldEqual, 1)
			_, err = locker.TryLock(ctx, lock.MarketKey(f.marketID))
			So(err, ShouldBeNil)
		})
	})

	Convey("Given a cancelled trigger context", t, func() {
		f := newFixture("a#1")
		f.gateway.addGame("a#1", "A1", "Ahri")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		report, err := f.updater.UpdateMarket(ctx, f.marketID)
		So(err, ShouldBeNil)
		So(report.Count(frontier.Failed), ShouldEqual, 1)
		So(f.store.ProcessedCount(), ShouldEqual, 0)
	})
}
