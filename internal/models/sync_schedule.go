package models

import "time"

// SyncSchedule is the persisted "next run due" marker for a tenant's
// periodic queue drain. A run happens only after atomically advancing
// next_run_at, so overlapping triggers across processes collapse into one.
type SyncSchedule struct {
	TenantID  string    `gorm:"column:tenant_id;primaryKey"`
	NextRunAt time.Time `gorm:"column:next_run_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SyncSchedule) TableName() string {
	return "sync_schedule"
}
