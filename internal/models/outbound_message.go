package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message statuses, ordered. Terminal statuses share the highest rank.
const (
	MessageStatusAccepted    = "accepted"
	MessageStatusQueued      = "queued"
	MessageStatusSending     = "sending"
	MessageStatusSent        = "sent"
	MessageStatusDelivered   = "delivered"
	MessageStatusUndelivered = "undelivered"
	MessageStatusFailed      = "failed"
	MessageStatusCanceled    = "canceled"
	MessageStatusRead        = "read"
)

// Job statuses track the send attempt rather than the carrier's view of it.
const (
	JobStatusPending  = "pending"
	JobStatusSending  = "sending"
	JobStatusSent     = "sent"
	JobStatusFailed   = "failed"
	JobStatusCanceled = "canceled"
)

// OutboundMessage is one logical outbound SMS. IdempotencyKey is unique: the
// row is the ledger entry that makes replays safe. A row with a provider
// message id has been accepted by the carrier and counts as delivered for
// idempotency purposes.
type OutboundMessage struct {
	ID                string    `json:"id" gorm:"primaryKey;type:text"`
	IdempotencyKey    string    `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	UserID            string    `json:"user_id" gorm:"type:text;index"`
	ToPhone           string    `json:"to_phone" gorm:"type:text;not null"`
	FromPhone         string    `json:"from_phone" gorm:"type:text"`
	Body              string    `json:"body" gorm:"type:text;not null"`
	ProviderMessageID string    `json:"provider_message_id" gorm:"type:text;index"`
	Status            string    `json:"status" gorm:"type:text;not null;default:accepted"`
	JobStatus         string    `json:"job_status" gorm:"type:text;not null;default:pending"`
	LastError         string    `json:"last_error" gorm:"type:text"`
	Attempts          int       `json:"attempts" gorm:"default:0"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (m *OutboundMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = MessageStatusAccepted
	}
	if m.JobStatus == "" {
		m.JobStatus = JobStatusPending
	}
	return nil
}

// Delivered reports whether the carrier accepted this message.
func (m *OutboundMessage) Delivered() bool {
	return m.ProviderMessageID != ""
}
