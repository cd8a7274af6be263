package db

import (
	"fmt"

	"github.com/salesdock/automation/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all persisted models.
//
// The unique index on workflow_runs.idempotency_key is the load-bearing part:
// at-most-once dispatch rests on the database rejecting a second insert for
// the same occurrence, so migration fails hard if the index cannot be built.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if err := conn.AutoMigrate(
		&models.Setting{},
		&models.TriggerRule{},
		&models.WorkflowRun{},
		&models.Thread{},
		&models.EmailMessage{},
		&models.ReminderState{},
	); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}

	if !conn.Migrator().HasIndex(&models.WorkflowRun{}, "IdempotencyKey") {
		return fmt.Errorf("db: workflow_runs missing idempotency key index")
	}
	return nil
}
