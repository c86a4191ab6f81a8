// Package testutil provides an in-memory database for service tests.
package testutil

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"examgate_backend/internal/models"
)

// OpenDB returns an isolated in-memory database with the full schema
// migrated. The single-connection cap keeps every query on the same
// sqlite memory instance.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.ManualSession{},
		&models.RecurringWindow{},
		&models.AttendanceRecord{},
		&models.Attempt{},
		&models.AttemptSubmission{},
		&models.Submission{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
