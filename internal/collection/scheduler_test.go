package collection

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSchedulerRefreshesPeriodically(t *testing.T) {
	store := newFakeStore()
	store.seed(7, "base1-4", 1)
	index := NewIndex(store, 1)

	scheduler := NewScheduler(index, 10*time.Millisecond)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		calls := store.listCalls
		store.mu.Unlock()
		if calls >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("scheduler made %d refreshes, want >= 2", calls)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := index.QuantityOf(7, "base1-4"); got != 1 {
		t.Errorf("QuantityOf after scheduled refresh = %d, want 1", got)
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	scheduler := NewScheduler(NewIndex(newFakeStore(), 1), time.Minute)
	scheduler.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Stop()
		}()
	}
	wg.Wait()
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	index := NewIndex(store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewScheduler(index, time.Millisecond)
	scheduler.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		scheduler.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler loop did not exit after context cancel")
	}
}
