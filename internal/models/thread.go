package models

import "time"

// ThreadStatus is the lifecycle state of an outreach thread.
type ThreadStatus string

// ThreadStatus values.
const (
	// ThreadStatusAwaitingReply means the contact has not responded yet.
	ThreadStatusAwaitingReply ThreadStatus = "awaiting_reply"
	// ThreadStatusReplied means the contact responded; follow-ups stop.
	ThreadStatusReplied ThreadStatus = "replied"
	// ThreadStatusClosed means the thread was closed manually.
	ThreadStatusClosed ThreadStatus = "closed"
)

// Thread is an outreach conversation with a single contact.
//
// The reminder policy fields are read by the reminder scheduler at send time
// rather than copied into ReminderState, so edits to the policy take effect on
// the next tick. Status changes (a reply arriving, manual close) are made by
// the inbound-mail surface; the scheduler only observes them.
type Thread struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	TenantID uint64 `gorm:"not null;index"`           // Owning tenant ID.

	ContactEmail string `gorm:"type:text;not null"` // Contact address.
	ContactName  string `gorm:"type:text"`          // Contact display name.
	Subject      string `gorm:"type:text"`          // Thread subject.

	Status ThreadStatus `gorm:"type:text;not null;default:'awaiting_reply';index"` // Lifecycle state.

	RemindersEnabled       bool `gorm:"not null;default:false"` // Whether follow-ups run at all.
	RemindersApproved      bool `gorm:"not null;default:false"` // Whether a human approved the sequence.
	ReminderMaxCount       int  `gorm:"not null;default:0"`     // Max follow-ups for this thread.
	ReminderFrequencyHours int  `gorm:"not null;default:72"`    // Hours between follow-ups.

	ReplyDeadline *time.Time // Deadline mentioned in follow-up copy, when set.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// RemindersActive reports whether the thread's policy currently allows follow-ups.
func (t *Thread) RemindersActive() bool {
	if t == nil {
		return false
	}
	return t.RemindersEnabled && t.RemindersApproved
}

// Resolved reports whether the thread no longer needs follow-ups.
func (t *Thread) Resolved() bool {
	if t == nil {
		return true
	}
	return t.Status != ThreadStatusAwaitingReply
}
