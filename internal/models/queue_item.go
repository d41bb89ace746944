package models

import "time"

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"    // Waiting to be claimed (or rescheduled after a retryable failure)
	QueueStatusProcessing QueueStatus = "processing" // Claimed by exactly one worker invocation
	QueueStatusCompleted  QueueStatus = "completed"  // Synced successfully
	QueueStatusFailed     QueueStatus = "failed"     // Terminal: retries exhausted or fatal error
)

type SyncDirection string

const (
	DirectionLocalToRemote SyncDirection = "local_to_remote" // Push local change to the ERP
	DirectionRemoteToLocal SyncDirection = "remote_to_local" // Apply ERP change locally
)

type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

type QueueItem struct {
	ID            string        `gorm:"column:id;primaryKey"`
	TenantID      string        `gorm:"column:tenant_id;index"`
	CorrelationID string        `gorm:"column:correlation_id"`
	Module        string        `gorm:"column:module"`
	Direction     SyncDirection `gorm:"column:direction"`
	EntityType    string        `gorm:"column:entity_type"`
	LocalID       *string       `gorm:"column:local_id"`
	RemoteID      *string       `gorm:"column:remote_id"`
	Action        SyncAction    `gorm:"column:action"`
	Payload       []byte        `gorm:"column:payload"`
	Priority      int           `gorm:"column:priority"`
	Status        QueueStatus   `gorm:"column:status;index"`
	Attempts      int           `gorm:"column:attempts"`
	MaxAttempts   int           `gorm:"column:max_attempts"`
	LastError     *string       `gorm:"column:last_error"`
	ScheduledAt   time.Time     `gorm:"column:scheduled_at"`
	ProcessedAt   *time.Time    `gorm:"column:processed_at"`
	CreatedAt     time.Time     `gorm:"column:created_at"`
	UpdatedAt     time.Time     `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (QueueItem) TableName() string {
	return "sync_queue"
}

// EntityRef returns the identifier that names the entity for this job:
// the local id for pushes, the remote id for pulls. Either may be present
// on both; the direction decides which one is authoritative for dedup.
func (q *QueueItem) EntityRef() string {
	if q.Direction == DirectionLocalToRemote && q.LocalID != nil {
		return *q.LocalID
	}
	if q.RemoteID != nil {
		return *q.RemoteID
	}
	if q.LocalID != nil {
		return *q.LocalID
	}
	return ""
}
