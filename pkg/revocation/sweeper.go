package revocation

import (
	"context"
	"log"
	"time"
)

// Sweeper runs PurgeExpired on a fixed interval. Deletes are idempotent, so
// running sweepers redundantly from several processes is safe, just wasteful.
type Sweeper struct {
	store    Store
	interval time.Duration
	stop     chan struct{}
}

func NewSweeper(store Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Sweeper{store: store, interval: interval, stop: make(chan struct{})}
}

// Start launches the background ticker and runs one sweep immediately.
func (s *Sweeper) Start() {
	go func() {
		s.sweep()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
	log.Printf("[PURGE] background sweeper started (every %s)", s.interval)
}

// Stop terminates the ticker goroutine.
func (s *Sweeper) Stop() {
	close(s.stop)
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	removed, err := s.store.PurgeExpired(ctx, time.Now())
	if err != nil {
		log.Printf("[PURGE] sweep failed: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("[PURGE] removed %d expired revocation records", removed)
	}
}
