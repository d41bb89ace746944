package watcher

import (
	"context"
	"log"
	"time"

	"github.com/avandenbergh/erplink/internal/config"
)

// ScheduleClaimer gates a periodic run behind the persisted schedule row.
type ScheduleClaimer interface {
	ClaimDue(ctx context.Context, tenant string, interval time.Duration) (bool, error)
}

// StaleRecoverer reclaims items stuck in processing by a crashed worker.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// QueueProcessor drains the sync queue.
type QueueProcessor interface {
	ProcessQueue(ctx context.Context) error
}

// Watcher is the periodic trigger: every tick it claims the schedule,
// sweeps stale claims, and drains the queue under the run budget.
type Watcher struct {
	cfg      *config.Config
	schedule ScheduleClaimer
	queue    StaleRecoverer
	engine   QueueProcessor
}

func New(cfg *config.Config, schedule ScheduleClaimer, queue StaleRecoverer, engine QueueProcessor) *Watcher {
	return &Watcher{
		cfg:      cfg,
		schedule: schedule,
		queue:    queue,
		engine:   engine,
	}
}

// Start begins the poll loop. It runs one pass immediately, then on every
// tick; per-tick errors are logged, the loop only exits with the context.
func (w *Watcher) Start(ctx context.Context) error {
	log.Printf("Starting sync watcher (tenant: %s, poll interval: %ds)...",
		w.cfg.TenantID, w.cfg.PollInterval)

	w.tick(ctx)

	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Watcher shutting down...")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs one claimed sync pass.
func (w *Watcher) tick(ctx context.Context) {
	interval := time.Duration(w.cfg.PollInterval) * time.Second
	claimed, err := w.schedule.ClaimDue(ctx, w.cfg.TenantID, interval)
	if err != nil {
		log.Printf("Error claiming schedule: %v", err)
		return
	}
	if !claimed {
		// Another process owns this run.
		return
	}

	recovered, err := w.queue.RecoverStale(ctx, time.Duration(w.cfg.StaleTimeout)*time.Second)
	if err != nil {
		log.Printf("Error recovering stale items: %v", err)
	} else if recovered > 0 {
		log.Printf("Recovered %d stale processing item(s)", recovered)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(w.cfg.RunBudget)*time.Second)
	defer cancel()

	if err := w.engine.ProcessQueue(runCtx); err != nil {
		log.Printf("Error processing queue: %v", err)
	}
}
