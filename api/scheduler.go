/*
scheduler.go - Automated orphan-relink scheduler

PURPOSE:
  Periodically sweeps for validation records whose checkin link is null
  or dangling and repairs them via the package presence Linker.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each sweep is bounded (batch limit) so it never monopolizes the store
  - Relinking is compare-and-set and idempotent, so overlapping sweeps
    (scheduler + manual /api/admin/relink) are safe
  - Unresolved orphans stay put; they surface in /api/admin/orphans

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Options: relink window and batch limit (defaults from package presence)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRelinkScheduler(linker)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Relink endpoint (manual sweep)
  - presence/linker.go: RelinkOrphans
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ccrb/presence-engine/presence"
)

// RelinkScheduler handles automated orphan-validation repair.
type RelinkScheduler struct {
	Linker        *presence.Linker
	CheckInterval time.Duration
	Options       presence.RelinkOptions
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRelinkScheduler creates a new scheduler.
func NewRelinkScheduler(linker *presence.Linker) *RelinkScheduler {
	return &RelinkScheduler{
		Linker:        linker,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RelinkScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *RelinkScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RelinkScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.sweep()

	for {
		select {
		case <-rs.ticker.C:
			rs.sweep()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RelinkScheduler) sweep() {
	ctx := context.Background()

	summary, err := rs.Linker.RelinkOrphans(ctx, rs.Options)
	if err != nil {
		log.Printf("[Scheduler] Relink sweep failed: %v", err)
		return
	}

	if summary.Scanned > 0 {
		log.Printf("[Scheduler] Relink sweep: %d scanned, %d relinked, %d unresolved",
			summary.Scanned, summary.Relinked, summary.Unresolved)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (rs *RelinkScheduler) RunNow() {
	rs.sweep()
}

// GetNextRunTime returns when the next scheduled sweep will occur.
func (rs *RelinkScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(rs.CheckInterval)
}
