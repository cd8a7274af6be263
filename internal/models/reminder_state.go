package models

import "time"

// StoppedReason values for ReminderState.
const (
	// StoppedReasonReplied means the contact responded before the next send.
	StoppedReasonReplied = "replied"
	// StoppedReasonMaxReached means the configured follow-up cap was hit.
	StoppedReasonMaxReached = "max_reached"
)

// ReminderState tracks the follow-up sequence for one outstanding thread.
//
// Invariants maintained by the reminder scheduler: SentCount never exceeds the
// thread's ReminderMaxCount; NextSendAt is nil exactly when StoppedReason is
// non-nil; a terminal state (non-nil StoppedReason) is never polled again.
// SentCount doubles as the optimistic concurrency token for claims, so
// ReminderNumber carries the human-visible sequence label independently and
// stays correct across claim retries.
type ReminderState struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	ThreadID uint64 `gorm:"not null;uniqueIndex"`     // Owning thread ID.

	NextSendAt *time.Time `gorm:"index"`              // Next due instant; nil once terminal.
	SentCount  int        `gorm:"not null;default:0"` // Successful sends so far.

	ReminderNumber int        `gorm:"not null;default:1"` // Sequence label for the next follow-up.
	LastSentAt     *time.Time // Last successful send.

	StoppedReason *string `gorm:"type:text;index"` // replied | max_reached; nil while active.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Terminal reports whether the state has stopped being polled.
func (s *ReminderState) Terminal() bool {
	return s != nil && s.StoppedReason != nil
}
