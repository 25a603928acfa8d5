package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	coalesced, err := q.Enqueue(ctx, Trigger{MarketID: 1, Source: "http"})
	if err != nil || coalesced {
		t.Fatalf("expected plain enqueue, got coalesced=%v err=%v", coalesced, err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	tr := <-q.Dequeue(dctx)
	if tr.MarketID != 1 || tr.Source != "http" {
		t.Errorf("unexpected trigger %+v", tr)
	}
	if tr.EnqueuedAt.IsZero() {
		t.Error("expected enqueue time to be stamped")
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Coalescing(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	if c, _ := q.Enqueue(ctx, Trigger{MarketID: 7}); c {
		t.Fatal("first trigger must not be coalesced")
	}
	for i := 0; i < 3; i++ {
		c, err := q.Enqueue(ctx, Trigger{MarketID: 7})
		if err != nil || !c {
			t.Fatalf("expected coalesced trigger, got coalesced=%v err=%v", c, err)
		}
	}
	if c, _ := q.Enqueue(ctx, Trigger{MarketID: 8}); c {
		t.Fatal("a different market must not be coalesced")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := q.Dequeue(dctx)
	first := <-ch
	if first.MarketID != 7 {
		t.Fatalf("expected market 7 first, got %d", first.MarketID)
	}

	// Once handed out, the market may be queued again.
	deadline := time.Now().Add(time.Second)
	for {
		c, err := q.Enqueue(ctx, Trigger{MarketID: 7})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !c {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("market 7 stayed pending after dequeue")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInMemoryQueue_CapacityLimit(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for id := int64(1); id <= 2; id++ {
		if _, err := q.Enqueue(ctx, Trigger{MarketID: id}); err != nil {
			t.Fatalf("enqueue %d: %v", id, err)
		}
	}
	if _, err := q.Enqueue(ctx, Trigger{MarketID: 3}); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	// A pending market is still coalesced when the queue is full.
	if c, err := q.Enqueue(ctx, Trigger{MarketID: 1}); err != nil || !c {
		t.Errorf("expected coalesced trigger, got coalesced=%v err=%v", c, err)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Enqueue(ctx, Trigger{MarketID: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(64))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const markets = 50
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := int64(1); id <= markets; id++ {
				for {
					_, err := q.Enqueue(ctx, Trigger{MarketID: id})
					if err == nil {
						break
					}
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	var mu sync.Mutex
	seen := make(map[int64]int)
	for i := 0; i < 4; i++ {
		go func() {
			for tr := range q.Dequeue(ctx) {
				mu.Lock()
				seen[tr.MarketID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for q.Len(ctx) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id := int64(1); id <= markets; id++ {
		if n := seen[id]; n < 1 || n > 4 {
			t.Errorf("market %d delivered %d times", id, n)
		}
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	for id := int64(1); id <= 2; id++ {
		if _, err := q.Enqueue(ctx, Trigger{MarketID: id}); err != nil {
			t.Fatalf("enqueue %d: %v", id, err)
		}
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if _, err := q.Enqueue(ctx, Trigger{MarketID: 3}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Pending triggers drain, then the channel closes.
	var got []int64
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case tr, ok := <-ch:
			if !ok {
				if len(got) != 2 {
					t.Errorf("expected 2 drained triggers, got %v", got)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			got = append(got, tr.MarketID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
