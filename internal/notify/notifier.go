package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/avandenbergh/erplink/internal/models"
)

const (
	DefaultWindow    = 15 * time.Minute
	DefaultThreshold = 10

	deliveryTimeout = 10 * time.Second
)

// Event describes a terminal sync failure or a module-level failure-rate
// alert, handed to sinks for delivery outside the core.
type Event struct {
	Subject       string    `json:"subject"`
	TenantID      string    `json:"tenant_id"`
	Module        string    `json:"module"`
	EntityType    string    `json:"entity_type,omitempty"`
	QueueItemID   string    `json:"queue_item_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	FailureCount  int       `json:"failure_count,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Sink delivers an event to an external channel (log, webhook, mail).
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Notifier observes terminal failed transitions and tracks a sliding
// failure window per module. Delivery is asynchronous and best-effort: a
// failing sink is logged and never propagates to the sync engine.
type Notifier struct {
	sinks     []Sink
	window    time.Duration
	threshold int

	mu        sync.Mutex
	failures  map[string][]time.Time
	lastAlert map[string]time.Time
}

func New(window time.Duration, threshold int, sinks ...Sink) *Notifier {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Notifier{
		sinks:     sinks,
		window:    window,
		threshold: threshold,
		failures:  make(map[string][]time.Time),
		lastAlert: make(map[string]time.Time),
	}
}

// NotifyTerminal records a job that exhausted its attempts (or failed
// fatally) and emits a notification. Crossing the per-module failure-rate
// threshold within the window emits an additional alert, at most once per
// window.
func (n *Notifier) NotifyTerminal(job *models.QueueItem, errMsg string) {
	now := time.Now()

	n.emit(Event{
		Subject:       "sync job failed",
		TenantID:      job.TenantID,
		Module:        job.Module,
		EntityType:    job.EntityType,
		QueueItemID:   job.ID,
		CorrelationID: job.CorrelationID,
		Error:         errMsg,
		OccurredAt:    now,
	})

	if count, alert := n.recordFailure(job.Module, now); alert {
		n.emit(Event{
			Subject:      "module failure rate exceeded",
			TenantID:     job.TenantID,
			Module:       job.Module,
			FailureCount: count,
			OccurredAt:   now,
		})
	}
}

// recordFailure appends a failure to the module's sliding window, prunes
// expired entries, and reports whether the threshold alert should fire.
func (n *Notifier) recordFailure(module string, now time.Time) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := now.Add(-n.window)
	kept := n.failures[module][:0]
	for _, t := range n.failures[module] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	n.failures[module] = kept

	if len(kept) < n.threshold {
		return len(kept), false
	}
	if last, ok := n.lastAlert[module]; ok && last.After(cutoff) {
		return len(kept), false
	}
	n.lastAlert[module] = now
	return len(kept), true
}

// emit fans the event out to all sinks in the background.
func (n *Notifier) emit(event Event) {
	for _, sink := range n.sinks {
		go func(s Sink) {
			ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
			defer cancel()
			if err := s.Deliver(ctx, event); err != nil {
				log.Printf("Warning: notification delivery failed (%T): %v", s, err)
			}
		}(sink)
	}
}

// LogSink writes notifications to the process log.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, event Event) error {
	if event.QueueItemID != "" {
		log.Printf("NOTIFY %s: item %s [%s] module=%s entity=%s: %s",
			event.Subject, event.QueueItemID, event.CorrelationID, event.Module, event.EntityType, event.Error)
		return nil
	}
	log.Printf("NOTIFY %s: module=%s failures=%d in window", event.Subject, event.Module, event.FailureCount)
	return nil
}
