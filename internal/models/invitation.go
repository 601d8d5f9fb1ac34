package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact invitation statuses
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusDeclined = "declined"
)

// ContactInvitation is an invite sent by a user to a phone number that may not
// belong to a provisioned user yet. Lookups go through the hashed address.
type ContactInvitation struct {
	ID               string     `json:"id" gorm:"primaryKey;type:text"`
	InviterUserID    string     `json:"inviter_user_id" gorm:"type:text;not null;index"`
	InviteePhoneHash string     `json:"invitee_phone_hash" gorm:"type:text;not null;index"`
	Status           string     `json:"status" gorm:"type:text;not null;default:pending;index"`
	RespondedAt      *time.Time `json:"responded_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (i *ContactInvitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = InvitationStatusPending
	}
	return nil
}

// Linkup statuses
const (
	LinkupStatusForming   = "forming"
	LinkupStatusLocked    = "locked"
	LinkupStatusCompleted = "completed"
	LinkupStatusCanceled  = "canceled"
)

// Linkup is a planned group activity. Sessions hold a weak reference to it.
type Linkup struct {
	ID          string     `json:"id" gorm:"primaryKey;type:text"`
	Status      string     `json:"status" gorm:"type:text;not null;default:forming"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (l *Linkup) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
