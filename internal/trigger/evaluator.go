// Package trigger implements the periodic evaluator that finds due rules and
// dispatches workflow runs for them.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/salesdock/automation/internal/condition"
	"github.com/salesdock/automation/internal/dispatch"
	"github.com/salesdock/automation/internal/models"
	"github.com/salesdock/automation/internal/schedule"
	"github.com/salesdock/automation/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultTickInterval = 5 * time.Minute

// TickSummary reports what one evaluator pass did.
type TickSummary struct {
	ScheduledDispatched int `json:"scheduled_dispatched"`
	ConditionDispatched int `json:"condition_dispatched"`
	Skipped             int `json:"skipped"`
	Errors              int `json:"errors"`
}

// Evaluator runs trigger rule evaluation on a fixed cadence.
//
// A tick is a single synchronous pass over a bounded due set. It is safe to
// re-run and safe to run from several instances at once: at-most-once dispatch
// comes from the run idempotency key, not from anything in this process.
type Evaluator struct {
	db         *gorm.DB
	dispatcher *dispatch.Dispatcher
	conditions condition.Evaluator
	interval   time.Duration
}

// NewEvaluator constructs a trigger evaluator.
func NewEvaluator(db *gorm.DB, dispatcher *dispatch.Dispatcher, conditions condition.Evaluator) *Evaluator {
	if db == nil || dispatcher == nil {
		return nil
	}
	return &Evaluator{
		db:         db,
		dispatcher: dispatcher,
		conditions: conditions,
		interval:   defaultTickInterval,
	}
}

// Start launches the evaluation loop in a background goroutine.
func (e *Evaluator) Start(ctx context.Context) {
	if e == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go e.run(ctx)
	log.Infof("trigger evaluator started (interval=%s)", e.interval)
}

func (e *Evaluator) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, errTick := e.Tick(ctx); errTick != nil {
			log.WithError(errTick).Warn("trigger evaluator: tick failed")
		}
		if ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(e.resolveInterval())
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (e *Evaluator) resolveInterval() time.Duration {
	seconds := settings.DefaultTriggerTickIntervalSeconds
	if parsed, ok := settings.IntValue(settings.TriggerTickIntervalSecondsKey); ok && parsed > 0 {
		seconds = parsed
	}
	if seconds <= 0 {
		return e.interval
	}
	return time.Duration(seconds) * time.Second
}

func debounceWindow() time.Duration {
	seconds := settings.DefaultConditionDebounceSeconds
	if parsed, ok := settings.IntValue(settings.ConditionDebounceSecondsKey); ok && parsed > 0 {
		seconds = parsed
	}
	return time.Duration(seconds) * time.Second
}

// Tick evaluates all due scheduled rules and all active data-condition rules
// once. Per-rule failures are logged and counted; only a failure to load a
// due set at all aborts the pass.
func (e *Evaluator) Tick(ctx context.Context) (TickSummary, error) {
	var summary TickSummary
	if e == nil || e.db == nil {
		return summary, errors.New("trigger: evaluator not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UTC()

	var dueScheduled []models.TriggerRule
	if errFind := e.db.WithContext(ctx).
		Where("is_active = ? AND kind = ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
			true, models.TriggerKindScheduled, now).
		Order("id ASC").
		Find(&dueScheduled).Error; errFind != nil {
		return summary, fmt.Errorf("trigger: load due scheduled rules: %w", errFind)
	}

	for i := range dueScheduled {
		rule := &dueScheduled[i]
		created, errRule := e.processScheduled(ctx, rule, now)
		if errRule != nil {
			log.WithError(errRule).Warnf("trigger evaluator: scheduled rule failed (rule=%d)", rule.ID)
			summary.Errors++
			continue
		}
		if created {
			summary.ScheduledDispatched++
		}
	}

	var active []models.TriggerRule
	if errFind := e.db.WithContext(ctx).
		Where("is_active = ? AND kind = ?", true, models.TriggerKindDataCondition).
		Order("id ASC").
		Find(&active).Error; errFind != nil {
		return summary, fmt.Errorf("trigger: load data-condition rules: %w", errFind)
	}

	window := debounceWindow()
	for i := range active {
		rule := &active[i]
		if rule.LastRunAt != nil && now.Sub(*rule.LastRunAt) < window {
			summary.Skipped++
			continue
		}
		created, errRule := e.processCondition(ctx, rule, now)
		if errRule != nil {
			log.WithError(errRule).Warnf("trigger evaluator: condition rule failed (rule=%d)", rule.ID)
			summary.Errors++
			continue
		}
		if created {
			summary.ConditionDispatched++
		}
	}

	return summary, nil
}

// processScheduled dispatches one due scheduled rule and advances its
// schedule. The occurrence identifier is the due instant itself, so two ticks
// racing on the same due rule compute the same idempotency key and only one
// run is recorded. The schedule advances even on the duplicate branch, which
// keeps nextRunAt moving when a tick is re-run.
func (e *Evaluator) processScheduled(ctx context.Context, rule *models.TriggerRule, now time.Time) (bool, error) {
	spec, ok := rule.Schedule()
	if !ok || rule.NextRunAt == nil {
		return false, fmt.Errorf("trigger: rule %d has no schedule", rule.ID)
	}

	eventID := dispatch.EventID(*rule.NextRunAt)
	metadata, _ := marshalJSON(map[string]any{
		"cron_expr":  spec.CronExpr,
		"timezone":   spec.Timezone,
		"created_by": rule.CreatedBy,
	})

	_, created, errCreate := e.dispatcher.CreateRun(ctx, rule.ID, rule.TenantID, dispatch.TriggerContext{
		Kind:     models.TriggerKindScheduled,
		EventID:  eventID,
		Metadata: metadata,
	}, dispatch.Key(rule.ID, models.TriggerKindScheduled, eventID))
	if errCreate != nil {
		return false, errCreate
	}

	next, errNext := schedule.NextOccurrence(spec.CronExpr, spec.Timezone, now)
	if errNext != nil {
		// Broken expressions must not halt the batch or pin the rule in the
		// due set; push it out by the bounded fallback and keep going.
		log.WithError(errNext).Warnf("trigger evaluator: invalid schedule, using fallback (rule=%d)", rule.ID)
		next = now.Add(schedule.FallbackDelay)
	}

	if errUpdate := e.db.WithContext(ctx).
		Model(&models.TriggerRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]any{
			"last_run_at": now,
			"next_run_at": next,
		}).Error; errUpdate != nil {
		return created, fmt.Errorf("trigger: advance schedule: %w", errUpdate)
	}
	return created, nil
}

// processCondition evaluates one data-condition rule. An evaluator failure
// leaves lastRunAt untouched so the rule is retried next tick; a match bumps
// lastRunAt whether or not the run was new, so the same tick window is not
// evaluated twice.
func (e *Evaluator) processCondition(ctx context.Context, rule *models.TriggerRule, now time.Time) (bool, error) {
	spec, ok := rule.Condition()
	if !ok {
		return false, fmt.Errorf("trigger: rule %d has no condition spec", rule.ID)
	}
	if e.conditions == nil {
		return false, errors.New("trigger: no condition evaluator configured")
	}

	result, errEval := e.conditions.Evaluate(ctx, spec, rule.TenantID)
	if errEval != nil {
		return false, errEval
	}
	if !result.Matched {
		return false, nil
	}

	periodKey := result.PeriodKey
	if periodKey == "" {
		// The collaborator should always bucket matches; falling back to the
		// current UTC date keeps the key stable within a day.
		periodKey = now.Format("2006-01-02")
	}

	metadata, _ := marshalJSON(map[string]any{
		"matched_row_count": result.MatchedRowCount,
		"created_by":        rule.CreatedBy,
	})

	_, created, errCreate := e.dispatcher.CreateRun(ctx, rule.ID, rule.TenantID, dispatch.TriggerContext{
		Kind:     models.TriggerKindDataCondition,
		EventID:  periodKey,
		Metadata: metadata,
	}, dispatch.Key(rule.ID, models.TriggerKindDataCondition, periodKey))
	if errCreate != nil {
		return false, errCreate
	}

	if errUpdate := e.db.WithContext(ctx).
		Model(&models.TriggerRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]any{"last_run_at": now}).Error; errUpdate != nil {
		return created, fmt.Errorf("trigger: touch last run: %w", errUpdate)
	}
	return created, nil
}

func marshalJSON(value map[string]any) (datatypes.JSON, error) {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(payload), nil
}
