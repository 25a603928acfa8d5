package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/champstock/internal/domain/ledger"
	"github.com/okian/champstock/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryLedger(t *testing.T) {
	Convey("Given an empty ledger", t, func() {
		ctx := context.Background()
		l := ledger.NewMemory()

		Convey("Nothing exists yet", func() {
			ok, err := l.Exists(ctx, 1, "NA1_1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(l.Size(), ShouldEqual, 0)
		})

		Convey("When a game is marked", func() {
			So(l.Mark(ctx, model.ProcessedGame{MarketPlayerID: 1, GameID: "NA1_1", Champion: "Ahri"}), ShouldBeNil)

			Convey("It exists for that slot only", func() {
				ok, _ := l.Exists(ctx, 1, "NA1_1")
				So(ok, ShouldBeTrue)
				ok, _ = l.Exists(ctx, 2, "NA1_1")
				So(ok, ShouldBeFalse)
			})

			Convey("Marking it again is rejected", func() {
				err := l.Mark(ctx, model.ProcessedGame{MarketPlayerID: 1, GameID: "NA1_1"})
				So(errors.Is(err, ledger.ErrAlreadyProcessed), ShouldBeTrue)
				So(l.Size(), ShouldEqual, 1)
			})
		})

		Convey("Concurrent marks of one pair admit exactly one writer", func() {
			var wins atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if l.Mark(ctx, model.ProcessedGame{MarketPlayerID: 9, GameID: "NA1_9"}) == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			So(wins.Load(), ShouldEqual, 1)
		})

		Convey("Distinct pairs are all recorded", func() {
			for i := 0; i < 10; i++ {
				So(l.Mark(ctx, model.ProcessedGame{MarketPlayerID: int64(i % 2), GameID: fmt.Sprintf("g%d", i)}), ShouldBeNil)
			}
			So(l.Size(), ShouldEqual, 10)
		})
	})
}
