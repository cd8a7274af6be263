package reminder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/salesdock/automation/internal/models"
	"gorm.io/gorm"
)

func setupSchedulerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:scheduler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := conn.AutoMigrate(&models.Thread{}, &models.EmailMessage{}, &models.ReminderState{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

type fakeRenderer struct {
	err   error
	calls int
	last  RenderRequest
}

func (r *fakeRenderer) RenderFollowUp(_ context.Context, req RenderRequest) (RenderResult, error) {
	r.calls++
	r.last = req
	if r.err != nil {
		return RenderResult{}, r.err
	}
	return RenderResult{
		Subject: fmt.Sprintf("Re: %s (follow-up %d)", req.OriginalSubject, req.SequenceNumber),
		Body:    "just checking in",
	}, nil
}

type fakeMailer struct {
	err   error
	calls int
	to    string
}

func (m *fakeMailer) Send(_ context.Context, to, _, _, _ string) (string, error) {
	m.calls++
	m.to = to
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("msg-%d", m.calls), nil
}

type fixture struct {
	conn      *gorm.DB
	scheduler *Scheduler
	renderer  *fakeRenderer
	mailer    *fakeMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := setupSchedulerTestDB(t)
	renderer := &fakeRenderer{}
	mailer := &fakeMailer{}
	scheduler := NewScheduler(conn, renderer, mailer)
	if scheduler == nil {
		t.Fatal("nil scheduler")
	}
	return &fixture{conn: conn, scheduler: scheduler, renderer: renderer, mailer: mailer}
}

func (f *fixture) createThread(t *testing.T, mutate func(*models.Thread)) *models.Thread {
	t.Helper()
	thread := models.Thread{
		TenantID:               7,
		ContactEmail:           "ada@example.com",
		ContactName:            "Ada",
		Subject:                "Proposal",
		Status:                 models.ThreadStatusAwaitingReply,
		RemindersEnabled:       true,
		RemindersApproved:      true,
		ReminderMaxCount:       3,
		ReminderFrequencyHours: 48,
	}
	if mutate != nil {
		mutate(&thread)
	}
	if errCreate := f.conn.Create(&thread).Error; errCreate != nil {
		t.Fatalf("create thread: %v", errCreate)
	}
	return &thread
}

func (f *fixture) createOriginalMessage(t *testing.T, threadID uint64) {
	t.Helper()
	msg := models.EmailMessage{
		ThreadID:  threadID,
		Direction: models.MessageDirectionOutbound,
		Subject:   "Proposal",
		Body:      "Here is our proposal.",
		SentAt:    time.Now().UTC().Add(-72 * time.Hour),
	}
	if errCreate := f.conn.Create(&msg).Error; errCreate != nil {
		t.Fatalf("create message: %v", errCreate)
	}
}

func (f *fixture) createDueState(t *testing.T, threadID uint64, sentCount, reminderNumber int) *models.ReminderState {
	t.Helper()
	due := time.Now().UTC().Add(-time.Minute)
	state := models.ReminderState{
		ThreadID:       threadID,
		NextSendAt:     &due,
		SentCount:      sentCount,
		ReminderNumber: reminderNumber,
	}
	if errCreate := f.conn.Create(&state).Error; errCreate != nil {
		t.Fatalf("create state: %v", errCreate)
	}
	return &state
}

func (f *fixture) reloadState(t *testing.T, id uint64) *models.ReminderState {
	t.Helper()
	var state models.ReminderState
	if errFind := f.conn.First(&state, id).Error; errFind != nil {
		t.Fatalf("load state: %v", errFind)
	}
	return &state
}

func TestTickSendsFollowUpAndReschedules(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, nil)
	f.createOriginalMessage(t, thread.ID)
	state := f.createDueState(t, thread.ID, 0, 1)

	summary, errTick := f.scheduler.Tick(context.Background())
	if errTick != nil {
		t.Fatalf("tick: %v", errTick)
	}
	if summary.Sent != 1 {
		t.Fatalf("expected 1 send, got %+v", summary)
	}
	if f.mailer.to != "ada@example.com" {
		t.Fatalf("sent to %q", f.mailer.to)
	}
	if f.renderer.last.SequenceNumber != 1 || f.renderer.last.MaxCount != 3 {
		t.Fatalf("unexpected render request: %+v", f.renderer.last)
	}

	updated := f.reloadState(t, state.ID)
	if updated.SentCount != 1 || updated.ReminderNumber != 2 {
		t.Fatalf("expected counters to advance, got sent=%d number=%d", updated.SentCount, updated.ReminderNumber)
	}
	if updated.StoppedReason != nil {
		t.Fatalf("expected state to stay active, got %q", *updated.StoppedReason)
	}
	if updated.NextSendAt == nil {
		t.Fatal("expected nextSendAt to be rescheduled")
	}
	until := time.Until(*updated.NextSendAt)
	if until < 47*time.Hour || until > 49*time.Hour {
		t.Fatalf("expected ~48h reschedule, got %s", until)
	}
	if updated.LastSentAt == nil {
		t.Fatal("expected lastSentAt to be set")
	}

	var logged models.EmailMessage
	if errFind := f.conn.
		Where("thread_id = ? AND direction = ? AND provider_message_id = ?", thread.ID, models.MessageDirectionOutbound, "msg-1").
		First(&logged).Error; errFind != nil {
		t.Fatalf("expected sent message in thread log: %v", errFind)
	}
}

func TestTickFinalSendStopsAtMaxReached(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, nil) // max 3
	f.createOriginalMessage(t, thread.ID)
	state := f.createDueState(t, thread.ID, 2, 3)

	summary, errTick := f.scheduler.Tick(context.Background())
	if errTick != nil {
		t.Fatalf("tick: %v", errTick)
	}
	if summary.Sent != 1 {
		t.Fatalf("expected final send, got %+v", summary)
	}

	updated := f.reloadState(t, state.ID)
	if updated.SentCount != 3 {
		t.Fatalf("expected sentCount 3, got %d", updated.SentCount)
	}
	if updated.StoppedReason == nil || *updated.StoppedReason != models.StoppedReasonMaxReached {
		t.Fatalf("expected max_reached, got %v", updated.StoppedReason)
	}
	if updated.NextSendAt != nil {
		t.Fatal("expected nil nextSendAt on terminal state")
	}

	// A further tick must not touch the terminal state.
	again, errTick := f.scheduler.Tick(context.Background())
	if errTick != nil {
		t.Fatalf("second tick: %v", errTick)
	}
	if again.Sent != 0 || again.Stopped != 0 || again.Errors != 0 {
		t.Fatalf("expected terminal state to be invisible, got %+v", again)
	}
	if f.mailer.calls != 1 {
		t.Fatalf("expected 1 delivery total, got %d", f.mailer.calls)
	}
}

func TestTickRepliedThreadStopsWithoutSending(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, func(th *models.Thread) {
		th.Status = models.ThreadStatusReplied
	})
	f.createOriginalMessage(t, thread.ID)
	state := f.createDueState(t, thread.ID, 1, 2)

	summary, errTick := f.scheduler.Tick(context.Background())
	if errTick != nil {
		t.Fatalf("tick: %v", errTick)
	}
	if summary.Stopped != 1 || summary.Sent != 0 {
		t.Fatalf("expected stop without send, got %+v", summary)
	}
	if f.mailer.calls != 0 {
		t.Fatalf("expected no delivery, got %d", f.mailer.calls)
	}

	updated := f.reloadState(t, state.ID)
	if updated.StoppedReason == nil || *updated.StoppedReason != models.StoppedReasonReplied {
		t.Fatalf("expected replied, got %v", updated.StoppedReason)
	}
	if updated.NextSendAt != nil {
		t.Fatal("expected nil nextSendAt on terminal state")
	}
	if updated.SentCount != 1 {
		t.Fatalf("expected sentCount untouched, got %d", updated.SentCount)
	}
}

func TestTickDisabledOrUnapprovedThreadIsSkipped(t *testing.T) {
	f := newFixture(t)
	disabled := f.createThread(t, func(th *models.Thread) { th.RemindersEnabled = false })
	unapproved := f.createThread(t, func(th *models.Thread) { th.RemindersApproved = false })
	f.createDueState(t, disabled.ID, 0, 1)
	f.createDueState(t, unapproved.ID, 0, 1)

	summary, errTick := f.scheduler.Tick(context.Background())
	if errTick != nil {
		t.Fatalf("tick: %v", errTick)
	}
	if summary.Skipped != 2 || summary.Sent != 0 || summary.Stopped != 0 {
		t.Fatalf("expected both skipped, got %+v", summary)
	}
	if f.mailer.calls != 0 {
		t.Fatalf("expected no delivery, got %d", f.mailer.calls)
	}
}

func TestTickZeroMaxCountParksState(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, func(th *models.Thread) { th.ReminderMaxCount = 0 })
	state := f.createDueState(t, thread.ID, 0, 1)

	if _, errTick := f.scheduler.Tick(context.Background()); errTick != nil {
		t.Fatalf("tick: %v", errTick)
	}

	updated := f.reloadState(t, state.ID)
	if updated.StoppedReason == nil || *updated.StoppedReason != models.StoppedReasonMaxReached {
		t.Fatalf("expected max_reached, got %v", updated.StoppedReason)
	}
	if updated.NextSendAt != nil {
		t.Fatal("expected parked state to leave the due set")
	}
}

func TestTickStaleSnapshotLosesClaim(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, nil)
	f.createOriginalMessage(t, thread.ID)
	state := f.createDueState(t, thread.ID, 1, 2)

	// Simulate a racing scheduler that already advanced the state after this
	// one loaded its due set: sentCount no longer matches the snapshot.
	if errUpdate := f.conn.Model(&models.ReminderState{}).
		Where("id = ?", state.ID).
		Updates(map[string]any{"sent_count": 2}).Error; errUpdate != nil {
		t.Fatalf("advance state: %v", errUpdate)
	}

	stale := *state // sentCount still 1
	outcome, errState := f.scheduler.processState(context.Background(), &stale, time.Now().UTC())
	if errState != nil {
		t.Fatalf("process state: %v", errState)
	}
	if outcome != outcomeSkipped {
		t.Fatalf("expected lost claim to skip, got %d", outcome)
	}
	if f.mailer.calls != 0 {
		t.Fatalf("expected no delivery on lost claim, got %d", f.mailer.calls)
	}
}

func TestTickSendFailureKeepsCountAndHoldsRetry(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, nil)
	f.createOriginalMessage(t, thread.ID)
	state := f.createDueState(t, thread.ID, 1, 2)
	f.mailer.err = &DeliveryError{To: "a***@example.com", StatusCode: 502}

	summary, errTick := f.scheduler.Tick(context.Background())
	if errTick != nil {
		t.Fatalf("tick: %v", errTick)
	}
	if summary.Errors != 1 || summary.Sent != 0 {
		t.Fatalf("expected delivery error, got %+v", summary)
	}

	updated := f.reloadState(t, state.ID)
	if updated.SentCount != 1 {
		t.Fatalf("expected sentCount unchanged, got %d", updated.SentCount)
	}
	if updated.StoppedReason != nil {
		t.Fatalf("expected state to stay active, got %q", *updated.StoppedReason)
	}
	// The claim moved nextSendAt into the hold window; the retry is bounded,
	// not immediate.
	if updated.NextSendAt == nil || !updated.NextSendAt.After(time.Now()) {
		t.Fatal("expected claim hold to defer the retry")
	}
}

func TestTickMissingOriginalMessageLeavesStateClaimed(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, nil)
	state := f.createDueState(t, thread.ID, 0, 1)

	summary, errTick := f.scheduler.Tick(context.Background())
	if errTick != nil {
		t.Fatalf("tick: %v", errTick)
	}
	if summary.Errors != 1 {
		t.Fatalf("expected data-integrity error, got %+v", summary)
	}
	if f.renderer.calls != 0 {
		t.Fatalf("expected no render without an original message, got %d", f.renderer.calls)
	}

	updated := f.reloadState(t, state.ID)
	if updated.SentCount != 0 {
		t.Fatalf("expected sentCount unchanged, got %d", updated.SentCount)
	}
	if updated.NextSendAt == nil || !updated.NextSendAt.After(time.Now()) {
		t.Fatal("expected state to stay claimed for a held retry")
	}
}

func TestProcessStateMissingOriginalWrapsSentinel(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, nil)
	state := f.createDueState(t, thread.ID, 0, 1)

	_, errState := f.scheduler.processState(context.Background(), state, time.Now().UTC())
	if !errors.Is(errState, ErrMissingOriginalMessage) {
		t.Fatalf("expected ErrMissingOriginalMessage, got %v", errState)
	}
}

func TestTickRenderFailureDoesNotSend(t *testing.T) {
	f := newFixture(t)
	thread := f.createThread(t, nil)
	f.createOriginalMessage(t, thread.ID)
	state := f.createDueState(t, thread.ID, 0, 1)
	f.renderer.err = errors.New("template service down")

	summary, errTick := f.scheduler.Tick(context.Background())
	if errTick != nil {
		t.Fatalf("tick: %v", errTick)
	}
	if summary.Errors != 1 {
		t.Fatalf("expected render error, got %+v", summary)
	}
	if f.mailer.calls != 0 {
		t.Fatalf("expected no delivery after render failure, got %d", f.mailer.calls)
	}

	updated := f.reloadState(t, state.ID)
	if updated.SentCount != 0 {
		t.Fatalf("expected sentCount unchanged, got %d", updated.SentCount)
	}
}
