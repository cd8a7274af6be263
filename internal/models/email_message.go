package models

import "time"

// MessageDirection distinguishes sent from received mail.
type MessageDirection string

// MessageDirection values.
const (
	// MessageDirectionOutbound is mail sent by the service.
	MessageDirectionOutbound MessageDirection = "outbound"
	// MessageDirectionInbound is mail received from the contact.
	MessageDirectionInbound MessageDirection = "inbound"
)

// EmailMessage is one message within a thread. The first outbound message of a
// thread is the one reminder follow-ups quote and reply to.
type EmailMessage struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	ThreadID uint64 `gorm:"not null;index"`           // Owning thread ID.

	Direction MessageDirection `gorm:"type:text;not null;index"` // Outbound or inbound.

	Subject  string `gorm:"type:text"` // Message subject.
	Body     string `gorm:"type:text"` // Plain-text body.
	HTMLBody string `gorm:"type:text"` // HTML body, when available.

	ProviderMessageID string `gorm:"type:text"` // Delivery collaborator's message ID.

	SentAt    time.Time `gorm:"not null;index"`          // Send or receive timestamp.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
