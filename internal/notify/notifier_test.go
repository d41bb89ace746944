package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avandenbergh/erplink/internal/models"
)

// chanSink forwards delivered events to a channel so tests can observe the
// asynchronous fan-out deterministically.
type chanSink struct {
	events chan Event
	err    error
}

func newChanSink() *chanSink {
	return &chanSink{events: make(chan Event, 16)}
}

func (s *chanSink) Deliver(_ context.Context, event Event) error {
	s.events <- event
	return s.err
}

func (s *chanSink) next(t *testing.T) Event {
	t.Helper()
	select {
	case event := <-s.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Event{}
	}
}

func terminalJob(id string) *models.QueueItem {
	return &models.QueueItem{
		ID:            id,
		TenantID:      "t1",
		CorrelationID: "corr-" + id,
		Module:        "orders",
		EntityType:    "order",
	}
}

func TestNotifyTerminal_EmitsFailureEvent(t *testing.T) {
	sink := newChanSink()
	notifier := New(DefaultWindow, DefaultThreshold, sink)

	notifier.NotifyTerminal(terminalJob("job-1"), "validation rejected")

	event := sink.next(t)
	if event.Subject != "sync job failed" {
		t.Errorf("expected failure subject, got %q", event.Subject)
	}
	if event.QueueItemID != "job-1" || event.CorrelationID != "corr-job-1" {
		t.Errorf("expected job identity on event, got %+v", event)
	}
	if event.Error != "validation rejected" {
		t.Errorf("expected error message on event, got %q", event.Error)
	}
}

func TestNotifyTerminal_ThresholdAlertFiresOnce(t *testing.T) {
	sink := newChanSink()
	notifier := New(time.Hour, 3, sink)

	for i := 0; i < 4; i++ {
		notifier.NotifyTerminal(terminalJob("job-x"), "connection timeout")
	}

	// 4 failure events plus exactly one threshold alert.
	failures, alerts := 0, 0
	for i := 0; i < 5; i++ {
		switch event := sink.next(t); event.Subject {
		case "sync job failed":
			failures++
		case "module failure rate exceeded":
			alerts++
			if event.FailureCount < 3 {
				t.Errorf("expected alert at threshold, got count %d", event.FailureCount)
			}
		}
	}
	if failures != 4 || alerts != 1 {
		t.Errorf("expected 4 failures and 1 alert, got %d and %d", failures, alerts)
	}
	select {
	case event := <-sink.events:
		t.Errorf("unexpected extra event: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyTerminal_FailingSinkDoesNotPropagate(t *testing.T) {
	broken := newChanSink()
	broken.err = errors.New("webhook unreachable")
	healthy := newChanSink()
	notifier := New(DefaultWindow, DefaultThreshold, broken, healthy)

	notifier.NotifyTerminal(terminalJob("job-1"), "connection timeout")

	// Both sinks are attempted; the broken one's error is swallowed.
	broken.next(t)
	event := healthy.next(t)
	if event.QueueItemID != "job-1" {
		t.Errorf("expected healthy sink to receive the event, got %+v", event)
	}
}

func TestRecordFailure_WindowPrunesAndRearms(t *testing.T) {
	notifier := New(10*time.Minute, 3)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, alert := notifier.recordFailure("orders", base); alert {
		t.Error("expected no alert below threshold")
	}
	if _, alert := notifier.recordFailure("orders", base.Add(time.Minute)); alert {
		t.Error("expected no alert below threshold")
	}
	count, alert := notifier.recordFailure("orders", base.Add(2*time.Minute))
	if !alert || count != 3 {
		t.Errorf("expected alert at threshold with count 3, got alert=%v count=%d", alert, count)
	}

	// Still over the threshold, but inside the same alert window.
	if _, alert := notifier.recordFailure("orders", base.Add(3*time.Minute)); alert {
		t.Error("expected at most one alert per window")
	}

	// Far enough out that the earlier failures have expired.
	count, alert = notifier.recordFailure("orders", base.Add(30*time.Minute))
	if alert {
		t.Error("expected no alert after the window emptied")
	}
	if count != 1 {
		t.Errorf("expected pruned window with 1 failure, got %d", count)
	}
}

func TestRecordFailure_ModulesIndependent(t *testing.T) {
	notifier := New(10*time.Minute, 2)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	notifier.recordFailure("orders", now)
	if _, alert := notifier.recordFailure("inventory", now); alert {
		t.Error("expected modules to keep separate windows")
	}
	if _, alert := notifier.recordFailure("orders", now.Add(time.Second)); !alert {
		t.Error("expected orders to cross its threshold")
	}
}
