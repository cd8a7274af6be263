// Package reminder implements the follow-up scheduler: a per-thread state
// machine that sends repeated reminders on a cadence until the contact replies
// or the configured cap is reached.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/salesdock/automation/internal/models"
	"github.com/salesdock/automation/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultTickInterval = 5 * time.Minute

// ErrMissingOriginalMessage marks a reminder state whose thread has no
// outbound message to follow up on. A data-integrity condition: the state is
// left claimed and retried after the hold elapses.
var ErrMissingOriginalMessage = errors.New("reminder: original message not found")

// TickSummary reports what one scheduler pass did.
type TickSummary struct {
	Sent    int `json:"sent"`
	Stopped int `json:"stopped"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Scheduler runs the reminder follow-up loop.
//
// Overlapping executions are safe: each due state is claimed with a
// compare-and-set update using the current sentCount as the optimistic token,
// so of two racing schedulers exactly one advances a given state per hold
// window. No locks are taken and states are processed independently.
type Scheduler struct {
	db       *gorm.DB
	renderer Renderer
	mailer   Mailer
	interval time.Duration
}

// NewScheduler constructs a reminder scheduler.
func NewScheduler(db *gorm.DB, renderer Renderer, mailer Mailer) *Scheduler {
	if db == nil {
		return nil
	}
	return &Scheduler{
		db:       db,
		renderer: renderer,
		mailer:   mailer,
		interval: defaultTickInterval,
	}
}

// Start launches the scheduling loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("reminder scheduler started (interval=%s)", s.interval)
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, errTick := s.Tick(ctx); errTick != nil {
			log.WithError(errTick).Warn("reminder scheduler: tick failed")
		}
		if ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(s.resolveInterval())
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

func (s *Scheduler) resolveInterval() time.Duration {
	seconds := settings.DefaultReminderTickIntervalSeconds
	if parsed, ok := settings.IntValue(settings.ReminderTickIntervalSecondsKey); ok && parsed > 0 {
		seconds = parsed
	}
	if seconds <= 0 {
		return s.interval
	}
	return time.Duration(seconds) * time.Second
}

func claimHold() time.Duration {
	seconds := settings.DefaultReminderClaimHoldSeconds
	if parsed, ok := settings.IntValue(settings.ReminderClaimHoldSecondsKey); ok && parsed > 0 {
		seconds = parsed
	}
	return time.Duration(seconds) * time.Second
}

// Tick processes every due reminder state once. Per-state failures are logged
// and counted; only a failure to load the due set aborts the pass.
func (s *Scheduler) Tick(ctx context.Context) (TickSummary, error) {
	var summary TickSummary
	if s == nil || s.db == nil {
		return summary, errors.New("reminder: scheduler not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UTC()

	var due []models.ReminderState
	if errFind := s.db.WithContext(ctx).
		Where("stopped_reason IS NULL AND next_send_at IS NOT NULL AND next_send_at <= ?", now).
		Order("next_send_at ASC").
		Find(&due).Error; errFind != nil {
		return summary, fmt.Errorf("reminder: load due states: %w", errFind)
	}

	for i := range due {
		outcome, errState := s.processState(ctx, &due[i], now)
		if errState != nil {
			log.WithError(errState).Warnf("reminder scheduler: state failed (state=%d thread=%d)", due[i].ID, due[i].ThreadID)
			summary.Errors++
			continue
		}
		switch outcome {
		case outcomeSent:
			summary.Sent++
		case outcomeStopped:
			summary.Stopped++
		case outcomeSkipped:
			summary.Skipped++
		}
	}

	return summary, nil
}

type stateOutcome int

const (
	outcomeSkipped stateOutcome = iota
	outcomeSent
	outcomeStopped
)

// processState advances one due reminder state through
// claim -> stop-condition checks -> render -> send -> reschedule/terminate.
func (s *Scheduler) processState(ctx context.Context, st *models.ReminderState, now time.Time) (stateOutcome, error) {
	var thread models.Thread
	if errFind := s.db.WithContext(ctx).First(&thread, st.ThreadID).Error; errFind != nil {
		return outcomeSkipped, fmt.Errorf("reminder: load thread %d: %w", st.ThreadID, errFind)
	}

	if !thread.RemindersActive() {
		return outcomeSkipped, nil
	}

	// A zero or unset cap can never send anything; park the state so it stops
	// showing up in the due set.
	if thread.ReminderMaxCount <= 0 {
		if errStop := s.stop(ctx, st.ID, models.StoppedReasonMaxReached); errStop != nil {
			return outcomeSkipped, errStop
		}
		return outcomeSkipped, nil
	}

	claimed, errClaim := s.claim(ctx, st, now)
	if errClaim != nil {
		return outcomeSkipped, errClaim
	}
	if !claimed {
		// Another execution won this state for the current hold window.
		return outcomeSkipped, nil
	}

	// Re-check the stop condition against the thread's current status; a reply
	// may have arrived between the due query and the claim.
	if errFind := s.db.WithContext(ctx).First(&thread, st.ThreadID).Error; errFind != nil {
		return outcomeSkipped, fmt.Errorf("reminder: reload thread %d: %w", st.ThreadID, errFind)
	}
	if thread.Resolved() {
		if errStop := s.stop(ctx, st.ID, models.StoppedReasonReplied); errStop != nil {
			return outcomeSkipped, errStop
		}
		return outcomeStopped, nil
	}

	if st.SentCount >= thread.ReminderMaxCount {
		if errStop := s.stop(ctx, st.ID, models.StoppedReasonMaxReached); errStop != nil {
			return outcomeSkipped, errStop
		}
		return outcomeStopped, nil
	}

	var original models.EmailMessage
	if errFind := s.db.WithContext(ctx).
		Where("thread_id = ? AND direction = ?", st.ThreadID, models.MessageDirectionOutbound).
		Order("sent_at ASC").
		First(&original).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			// Leave the state claimed; the hold window schedules the retry.
			return outcomeSkipped, fmt.Errorf("%w (thread=%d)", ErrMissingOriginalMessage, st.ThreadID)
		}
		return outcomeSkipped, fmt.Errorf("reminder: load original message: %w", errFind)
	}

	if s.renderer == nil || s.mailer == nil {
		return outcomeSkipped, errors.New("reminder: collaborators not configured")
	}

	rendered, errRender := s.renderer.RenderFollowUp(ctx, RenderRequest{
		SequenceNumber:  st.ReminderNumber,
		MaxCount:        thread.ReminderMaxCount,
		OriginalSubject: original.Subject,
		OriginalBody:    original.Body,
		ContactName:     thread.ContactName,
		Deadline:        thread.ReplyDeadline,
	})
	if errRender != nil {
		return outcomeSkipped, errRender
	}

	providerID, errSend := s.mailer.Send(ctx, thread.ContactEmail, rendered.Subject, rendered.Body, rendered.HTMLBody)
	if errSend != nil {
		// Send failed: sentCount stays put and the claim hold provides the
		// bounded-backoff retry.
		return outcomeSkipped, errSend
	}

	if errRecord := s.recordSend(ctx, st, &thread, rendered, providerID, now); errRecord != nil {
		return outcomeSent, errRecord
	}
	return outcomeSent, nil
}

// claim performs the compare-and-set that makes overlapping executions safe.
// Matching on the observed sentCount and a still-due nextSendAt means at most
// one caller can move the state into the hold window.
func (s *Scheduler) claim(ctx context.Context, st *models.ReminderState, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.ReminderState{}).
		Where("id = ? AND stopped_reason IS NULL AND next_send_at <= ? AND sent_count = ?",
			st.ID, now, st.SentCount).
		Updates(map[string]any{"next_send_at": now.Add(claimHold())})
	if res.Error != nil {
		return false, fmt.Errorf("reminder: claim state %d: %w", st.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// stop marks a state terminal. NextSendAt is cleared in the same update so the
// invariant "nil nextSendAt iff non-nil stoppedReason" holds at every commit.
func (s *Scheduler) stop(ctx context.Context, stateID uint64, reason string) error {
	if errUpdate := s.db.WithContext(ctx).
		Model(&models.ReminderState{}).
		Where("id = ? AND stopped_reason IS NULL", stateID).
		Updates(map[string]any{
			"stopped_reason": reason,
			"next_send_at":   nil,
		}).Error; errUpdate != nil {
		return fmt.Errorf("reminder: stop state %d: %w", stateID, errUpdate)
	}
	return nil
}

// recordSend commits a successful delivery: bump the counters, log the sent
// message into the thread, and either schedule the next follow-up or
// terminate at the cap.
func (s *Scheduler) recordSend(ctx context.Context, st *models.ReminderState, thread *models.Thread, rendered RenderResult, providerID string, now time.Time) error {
	newCount := st.SentCount + 1

	updates := map[string]any{
		"sent_count":      newCount,
		"reminder_number": st.ReminderNumber + 1,
		"last_sent_at":    now,
	}
	if newCount < thread.ReminderMaxCount {
		frequency := thread.ReminderFrequencyHours
		if frequency <= 0 {
			frequency = 72
		}
		updates["next_send_at"] = now.Add(time.Duration(frequency) * time.Hour)
	} else {
		updates["next_send_at"] = nil
		updates["stopped_reason"] = models.StoppedReasonMaxReached
	}

	if errUpdate := s.db.WithContext(ctx).
		Model(&models.ReminderState{}).
		Where("id = ? AND sent_count = ?", st.ID, st.SentCount).
		Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("reminder: record send for state %d: %w", st.ID, errUpdate)
	}

	sent := models.EmailMessage{
		ThreadID:          thread.ID,
		Direction:         models.MessageDirectionOutbound,
		Subject:           rendered.Subject,
		Body:              rendered.Body,
		HTMLBody:          rendered.HTMLBody,
		ProviderMessageID: providerID,
		SentAt:            now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&sent).Error; errCreate != nil {
		// The reminder already advanced; losing the thread log entry is worth
		// a warning, not a retry that would double-send.
		log.WithError(errCreate).Warnf("reminder scheduler: record sent message failed (thread=%d)", thread.ID)
	}
	return nil
}
