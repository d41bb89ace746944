package models

import "time"

// EntityMapping records the identity correspondence between a local entity
// and its ERP counterpart. One local entity maps to exactly one remote
// record per module/entity type, and vice versa.
type EntityMapping struct {
	ID           string     `gorm:"column:id;primaryKey"`
	TenantID     string     `gorm:"column:tenant_id"`
	Module       string     `gorm:"column:module"`
	EntityType   string     `gorm:"column:entity_type"`
	LocalID      string     `gorm:"column:local_id"`
	RemoteID     string     `gorm:"column:remote_id"`
	RemoteModel  string     `gorm:"column:remote_model"`
	SyncHash     string     `gorm:"column:sync_hash"`
	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`
	LastPolledAt *time.Time `gorm:"column:last_polled_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (EntityMapping) TableName() string {
	return "entity_map"
}
