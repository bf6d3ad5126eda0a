package collection

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler periodically refreshes the index so changes made on other
// devices show up even when this client issues no mutations of its own.
type Scheduler struct {
	index    *Index
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a refresh scheduler with the given interval.
func NewScheduler(index *Index, interval time.Duration) *Scheduler {
	return &Scheduler{
		index:    index,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic refresh loop. It returns immediately; the loop
// runs until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Printf("[Scheduler] Refreshing collection index every %v", s.interval)

		for {
			select {
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				if err := s.index.Refresh(refreshCtx); err != nil {
					log.Printf("[Scheduler] Periodic refresh failed: %v", err)
				}
				cancel()
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts the refresh loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
