package repository

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avandenbergh/erplink/internal/models"
)

// testDB opens an isolated in-memory database with the production schema's
// tables and unique indexes. A single connection keeps SQLite serialization
// out of the way so tests exercise the repositories' own claim logic.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&models.QueueItem{}, &models.EntityMapping{}, &models.SyncSchedule{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	indexes := []string{
		`CREATE UNIQUE INDEX ux_sync_queue_active ON sync_queue (
			tenant_id, module, entity_type, direction,
			COALESCE(local_id, ''), COALESCE(remote_id, '')
		) WHERE status IN ('pending', 'processing')`,
		`CREATE UNIQUE INDEX ux_entity_map_local ON entity_map (tenant_id, module, entity_type, local_id)`,
		`CREATE UNIQUE INDEX ux_entity_map_remote ON entity_map (tenant_id, module, entity_type, remote_id)`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create index: %v", err)
		}
	}

	return db
}

func strPtr(s string) *string {
	return &s
}
