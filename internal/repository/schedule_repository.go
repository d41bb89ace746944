package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/avandenbergh/erplink/internal/models"
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ClaimDue atomically claims the tenant's next periodic run. It advances
// next_run_at by interval only if the run is due, so overlapping triggers
// from multiple processes collapse into a single run. Returns true when the
// caller won the claim and should run.
func (r *ScheduleRepository) ClaimDue(ctx context.Context, tenant string, interval time.Duration) (bool, error) {
	now := time.Now()

	result := r.db.WithContext(ctx).Model(&models.SyncSchedule{}).
		Where("tenant_id = ? AND next_run_at <= ?", tenant, now).
		Updates(map[string]interface{}{
			"next_run_at": now.Add(interval),
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	// No due row. Either the schedule is not due yet, or the tenant has no
	// row at all; create one and claim the first run.
	var existing models.SyncSchedule
	err := r.db.WithContext(ctx).First(&existing, "tenant_id = ?", tenant).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to read schedule: %w", err)
	}

	schedule := models.SyncSchedule{
		TenantID:  tenant,
		NextRunAt: now.Add(interval),
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another process created the row first; it owns this run.
			return false, nil
		}
		return false, fmt.Errorf("failed to create schedule: %w", err)
	}
	return true, nil
}
