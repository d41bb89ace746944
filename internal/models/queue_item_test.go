package models

import (
	"testing"
)

func TestQueueStatus_Constants(t *testing.T) {
	tests := []struct {
		name     string
		status   QueueStatus
		expected string
	}{
		{"pending", QueueStatusPending, "pending"},
		{"processing", QueueStatusProcessing, "processing"},
		{"completed", QueueStatusCompleted, "completed"},
		{"failed", QueueStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.status) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tt.status)
			}
		})
	}
}

func TestQueueItem_EntityRef(t *testing.T) {
	localID := "order-42"
	remoteID := "1042"

	tests := []struct {
		name     string
		item     QueueItem
		expected string
	}{
		{
			name:     "push uses local id",
			item:     QueueItem{Direction: DirectionLocalToRemote, LocalID: &localID, RemoteID: &remoteID},
			expected: "order-42",
		},
		{
			name:     "pull uses remote id",
			item:     QueueItem{Direction: DirectionRemoteToLocal, LocalID: &localID, RemoteID: &remoteID},
			expected: "1042",
		},
		{
			name:     "push without local id falls back to remote id",
			item:     QueueItem{Direction: DirectionLocalToRemote, RemoteID: &remoteID},
			expected: "1042",
		},
		{
			name:     "pull without remote id falls back to local id",
			item:     QueueItem{Direction: DirectionRemoteToLocal, LocalID: &localID},
			expected: "order-42",
		},
		{
			name:     "no ids",
			item:     QueueItem{Direction: DirectionLocalToRemote},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.EntityRef(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestPayloadHash(t *testing.T) {
	a := PayloadHash([]byte(`{"name":"Acme"}`))
	b := PayloadHash([]byte(`{"name":"Acme"}`))
	c := PayloadHash([]byte(`{"name":"Acme Corp"}`))

	if a != b {
		t.Errorf("Expected identical payloads to hash equal, got %s vs %s", a, b)
	}
	if a == c {
		t.Error("Expected different payloads to hash differently")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
}
