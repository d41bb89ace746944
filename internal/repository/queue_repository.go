package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avandenbergh/erplink/internal/models"
)

// ErrDuplicateKey is returned when two producers race to enqueue the same
// entity and the loser hits the unique active-item index. The caller should
// re-attempt the enqueue; the retry will coalesce into the winner's row.
var ErrDuplicateKey = errors.New("duplicate active queue item")

const (
	DefaultMaxAttempts = 5

	backoffBase = 30 * time.Second
	backoffCap  = 30 * time.Minute
)

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a new queue item unless a pending or processing item
// already exists for the same entity identity and direction, in which case
// the existing item's payload and priority are updated in place (coalescing)
// and its id is returned.
func (r *QueueRepository) Enqueue(ctx context.Context, item *models.QueueItem) (string, error) {
	now := time.Now()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CorrelationID == "" {
		item.CorrelationID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}
	if item.MaxAttempts == 0 {
		item.MaxAttempts = DefaultMaxAttempts
	}
	if item.ScheduledAt.IsZero() {
		item.ScheduledAt = now
	}
	item.CreatedAt = now
	item.UpdatedAt = now

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND module = ? AND entity_type = ? AND direction = ?",
			item.TenantID, item.Module, item.EntityType, item.Direction).
		Where("status IN ?", []models.QueueStatus{models.QueueStatusPending, models.QueueStatusProcessing})

	if item.Direction == models.DirectionLocalToRemote && item.LocalID != nil {
		query = query.Where("local_id = ?", *item.LocalID)
	} else if item.RemoteID != nil {
		query = query.Where("remote_id = ?", *item.RemoteID)
	} else if item.LocalID != nil {
		query = query.Where("local_id = ?", *item.LocalID)
	}

	var existing models.QueueItem
	err := query.First(&existing).Error
	if err == nil {
		result := r.db.WithContext(ctx).Model(&models.QueueItem{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"payload":    item.Payload,
				"priority":   item.Priority,
				"action":     item.Action,
				"updated_at": now,
			})
		if result.Error != nil {
			return "", fmt.Errorf("failed to coalesce queue item: %w", result.Error)
		}
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to check for existing queue item: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrDuplicateKey
		}
		return "", fmt.Errorf("failed to create queue item: %w", err)
	}
	return item.ID, nil
}

// ClaimBatch atomically claims up to limit eligible pending items for the
// tenant, transitioning them to processing. The conditional per-row update
// guarantees two concurrent callers never claim the same item; an empty
// tenant claims across all tenants.
func (r *QueueRepository) ClaimBatch(ctx context.Context, tenant string, limit int) ([]models.QueueItem, error) {
	now := time.Now()

	query := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.QueueStatusPending, now).
		Order("priority ASC, created_at ASC").
		Limit(limit)
	if tenant != "" {
		query = query.Where("tenant_id = ?", tenant)
	}

	var candidates []models.QueueItem
	if err := query.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}

	claimed := make([]models.QueueItem, 0, len(candidates))
	for _, item := range candidates {
		result := r.db.WithContext(ctx).Model(&models.QueueItem{}).
			Where("id = ? AND status = ?", item.ID, models.QueueStatusPending).
			Updates(map[string]interface{}{
				"status":     models.QueueStatusProcessing,
				"updated_at": now,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to claim item %s: %w", item.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			// Lost the race to another worker.
			continue
		}
		item.Status = models.QueueStatusProcessing
		item.UpdatedAt = now
		claimed = append(claimed, item)
	}

	return claimed, nil
}

// MarkCompleted marks an item as successfully synced.
func (r *QueueRepository) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusCompleted,
			"processed_at": &now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark item completed: %w", result.Error)
	}
	return nil
}

// MarkFailed records a retryable failure. The item goes back to pending with
// an exponential-backoff schedule unless its retry budget is exhausted, in
// which case it transitions to the terminal failed status. Returns whether
// the failure was terminal.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string, errMsg string) (bool, error) {
	var item models.QueueItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return false, fmt.Errorf("failed to load queue item: %w", err)
	}

	now := time.Now()
	attempts := item.Attempts + 1

	if attempts >= item.MaxAttempts {
		result := r.db.WithContext(ctx).Model(&models.QueueItem{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":       models.QueueStatusFailed,
				"attempts":     attempts,
				"last_error":   errMsg,
				"processed_at": &now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return false, fmt.Errorf("failed to mark item failed: %w", result.Error)
		}
		return true, nil
	}

	result := r.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusPending,
			"attempts":     attempts,
			"last_error":   errMsg,
			"scheduled_at": now.Add(backoffDelay(attempts)),
			"processed_at": nil,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to reschedule item: %w", result.Error)
	}
	return false, nil
}

// MarkFailedPermanent records a fatal failure: the item is terminal on first
// occurrence regardless of its remaining retry budget. Used for validation
// rejections and unknown modules, where retrying cannot help.
func (r *QueueRepository) MarkFailedPermanent(ctx context.Context, id string, errMsg string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusFailed,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   errMsg,
			"processed_at": &now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark item permanently failed: %w", result.Error)
	}
	return nil
}

// RecoverStale resets processing items whose claim is older than olderThan
// and that never reached a terminal state, returning them to pending with an
// incremented attempt counter. Recovers items claimed by a crashed worker.
func (r *QueueRepository) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now()
	cutoff := now.Add(-olderThan)

	result := r.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("status = ? AND processed_at IS NULL AND updated_at < ?",
			models.QueueStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusPending,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to recover stale items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetByID retrieves a queue item by ID
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return &item, nil
}

// backoffDelay returns the retry delay for the given attempt count:
// exponential growth from backoffBase up to backoffCap, plus up to a quarter
// of the delay as jitter. The jitter stays below the next doubling step, so
// successive delays never shrink before the cap is reached.
func backoffDelay(attempts int) time.Duration {
	if attempts > 30 {
		attempts = 30
	}
	d := backoffBase << uint(attempts)
	if d <= 0 || d > backoffCap {
		d = backoffCap
	}
	return d + time.Duration(rand.Int63n(int64(d/4)+1))
}
