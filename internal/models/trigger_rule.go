package models

import (
	"time"

	"gorm.io/datatypes"
)

// TriggerKind identifies how a rule decides it is due.
type TriggerKind string

// TriggerKind values.
const (
	// TriggerKindScheduled fires on a cron schedule.
	TriggerKindScheduled TriggerKind = "scheduled"
	// TriggerKindDataCondition fires when a data predicate matches.
	TriggerKindDataCondition TriggerKind = "data_condition"
)

// TriggerRule is a configured automation definition.
//
// Exactly one of the schedule fields (CronExpr/Timezone) or ConditionSpec is
// populated, consistent with Kind. LastRunAt and NextRunAt are mutated only by
// the trigger evaluator; the management surface that creates rules never
// touches them.
type TriggerRule struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	TenantID uint64 `gorm:"not null;index"`           // Owning tenant ID.

	Name string      `gorm:"type:text;not null"`                   // Display name.
	Kind TriggerKind `gorm:"column:kind;type:text;not null;index"` // Trigger kind.

	CronExpr string `gorm:"type:text"` // Cron expression (scheduled only).
	Timezone string `gorm:"type:text"` // IANA timezone name (scheduled only).

	ConditionSpec datatypes.JSON `gorm:"type:jsonb"` // Predicate spec (data_condition only).

	ActionPayload datatypes.JSON `gorm:"type:jsonb"` // Opaque workflow action payload.

	IsActive  bool       `gorm:"not null;default:true;index"` // Whether the evaluator considers the rule.
	LastRunAt *time.Time `gorm:"index"`                       // Last evaluation that dispatched or debounced.
	NextRunAt *time.Time `gorm:"index"`                       // Next due instant (scheduled only).

	CreatedBy string `gorm:"type:text"` // Actor that configured the rule.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ScheduledSpec is the schedule variant of a rule.
type ScheduledSpec struct {
	CronExpr string
	Timezone string
}

// Schedule returns the schedule variant when the rule is a scheduled trigger.
func (r *TriggerRule) Schedule() (ScheduledSpec, bool) {
	if r == nil || r.Kind != TriggerKindScheduled {
		return ScheduledSpec{}, false
	}
	return ScheduledSpec{CronExpr: r.CronExpr, Timezone: r.Timezone}, true
}

// Condition returns the predicate spec when the rule is a data-condition trigger.
func (r *TriggerRule) Condition() (datatypes.JSON, bool) {
	if r == nil || r.Kind != TriggerKindDataCondition {
		return nil, false
	}
	return r.ConditionSpec, true
}
