package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorkflowRun is the durable record of one dispatched trigger occurrence.
//
// Rows are append-only: the dispatcher creates a run once per real occurrence
// and nothing in this service mutates it afterwards. The unique index on
// IdempotencyKey is what collapses concurrent dispatch attempts for the same
// occurrence into a single row.
type WorkflowRun struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	RuleID   uint64 `gorm:"not null;index"`           // Originating trigger rule ID.
	TenantID uint64 `gorm:"not null;index"`           // Owning tenant ID.

	IdempotencyKey string `gorm:"type:text;not null;uniqueIndex"` // Deterministic occurrence key.

	TriggerKind    TriggerKind `gorm:"type:text;not null"` // Trigger kind at dispatch time.
	TriggerEventID string      `gorm:"type:text;not null"` // ISO tick timestamp or period key.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Cron expression used, matched row count, actor.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName overrides the default table name.
func (WorkflowRun) TableName() string {
	return "workflow_runs"
}
