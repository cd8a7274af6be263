// Package dispatch records trigger occurrences exactly once and hands them to
// the downstream execution worker.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/salesdock/automation/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TriggerContext carries the occurrence details recorded with a run.
type TriggerContext struct {
	Kind     models.TriggerKind
	EventID  string
	Metadata datatypes.JSON
}

// Key builds the deterministic idempotency key for one logical occurrence.
// EventID is the ISO tick timestamp for scheduled triggers and the period key
// for data-condition triggers. The exact layout is part of the storage
// contract: every dispatch attempt for the same occurrence must produce the
// same bytes.
func Key(ruleID uint64, kind models.TriggerKind, eventID string) string {
	return fmt.Sprintf("%d:%s:%s", ruleID, kind, eventID)
}

// EventID formats a scheduled tick instant as a trigger event identifier.
func EventID(tick time.Time) string {
	return tick.UTC().Format(time.RFC3339)
}

// Dispatcher creates workflow runs and publishes dispatch events.
type Dispatcher struct {
	db        *gorm.DB
	publisher Publisher
}

// NewDispatcher constructs a dispatcher. The publisher may be nil, in which
// case runs are recorded without notifying an execution worker (useful for
// migration backfills and tests).
func NewDispatcher(db *gorm.DB, publisher Publisher) *Dispatcher {
	if db == nil {
		return nil
	}
	return &Dispatcher{db: db, publisher: publisher}
}

// CreateRun records the occurrence identified by the idempotency key.
//
// Both return paths are success: a fresh insert means this call won the
// occurrence and a dispatch event was published; a uniqueness conflict means
// a racing tick (or an earlier run of this one) already dispatched it, and the
// pre-existing row is returned with created=false and no second publish. No
// in-process locking is involved; correctness rests on the unique index.
func (d *Dispatcher) CreateRun(ctx context.Context, ruleID, tenantID uint64, trigger TriggerContext, idempotencyKey string) (*models.WorkflowRun, bool, error) {
	if d == nil || d.db == nil {
		return nil, false, errors.New("dispatch: dispatcher not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if idempotencyKey == "" {
		return nil, false, errors.New("dispatch: empty idempotency key")
	}

	run := models.WorkflowRun{
		RuleID:         ruleID,
		TenantID:       tenantID,
		IdempotencyKey: idempotencyKey,
		TriggerKind:    trigger.Kind,
		TriggerEventID: trigger.EventID,
		Metadata:       trigger.Metadata,
	}

	errCreate := d.db.WithContext(ctx).Create(&run).Error
	if errCreate == nil {
		d.publish(ctx, &run)
		return &run, true, nil
	}
	if !isDuplicateKey(errCreate) {
		return nil, false, fmt.Errorf("dispatch: create run: %w", errCreate)
	}

	var existing models.WorkflowRun
	if errFind := d.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&existing).Error; errFind != nil {
		return nil, false, fmt.Errorf("dispatch: load existing run: %w", errFind)
	}
	return &existing, false, nil
}

// isDuplicateKey detects a uniqueness conflict across dialects. Postgres and
// sqlite both translate through gorm.ErrDuplicatedKey; the message check
// covers drivers that predate error translation.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// publish notifies the execution worker. Publish failures are logged rather
// than returned: the run row already guarantees the occurrence is recorded at
// most once, and the downstream queue is at-least-once anyway.
func (d *Dispatcher) publish(ctx context.Context, run *models.WorkflowRun) {
	if d.publisher == nil || run == nil {
		return
	}
	if errPublish := d.publisher.PublishDispatch(ctx, run); errPublish != nil {
		log.WithError(errPublish).Warnf("dispatch: publish failed (run=%d rule=%d)", run.ID, run.RuleID)
	}
}
