package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avandenbergh/erplink/internal/models"
)

type EntityMapRepository struct {
	db *gorm.DB
}

func NewEntityMapRepository(db *gorm.DB) *EntityMapRepository {
	return &EntityMapRepository{db: db}
}

// LookupRemote finds the mapping for a local entity. Returns nil when the
// entity has never been synced.
func (r *EntityMapRepository) LookupRemote(ctx context.Context, tenant, module, entityType, localID string) (*models.EntityMapping, error) {
	var m models.EntityMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND module = ? AND entity_type = ? AND local_id = ?",
			tenant, module, entityType, localID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up mapping by local id: %w", err)
	}
	return &m, nil
}

// LookupLocal finds the mapping for a remote entity. Returns nil when the
// entity has never been synced.
func (r *EntityMapRepository) LookupLocal(ctx context.Context, tenant, module, entityType, remoteID string) (*models.EntityMapping, error) {
	var m models.EntityMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND module = ? AND entity_type = ? AND remote_id = ?",
			tenant, module, entityType, remoteID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up mapping by remote id: %w", err)
	}
	return &m, nil
}

// Upsert writes a mapping in a single atomic statement: insert on first
// sync, update of the remote side and sync hash on every later one.
func (r *EntityMapRepository) Upsert(ctx context.Context, m *models.EntityMapping) error {
	now := time.Now()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.LastSyncedAt == nil {
		m.LastSyncedAt = &now
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "module"}, {Name: "entity_type"}, {Name: "local_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"remote_id", "remote_model", "sync_hash", "last_synced_at", "updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// Delete removes the mapping identified by either side's id. Called when a
// delete has been synced in either direction.
func (r *EntityMapRepository) Delete(ctx context.Context, tenant, module, entityType, localOrRemoteID string) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND module = ? AND entity_type = ?", tenant, module, entityType).
		Where("local_id = ? OR remote_id = ?", localOrRemoteID, localOrRemoteID).
		Delete(&models.EntityMapping{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete mapping: %w", result.Error)
	}
	return nil
}

// TouchPolled records a change-detection poll for pull-based modules.
func (r *EntityMapRepository) TouchPolled(ctx context.Context, id string, polledAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.EntityMapping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_polled_at": &polledAt,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update poll time: %w", result.Error)
	}
	return nil
}
