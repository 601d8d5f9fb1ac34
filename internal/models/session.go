package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationSession is the single durable conversation state row for a user.
// Mode and StateToken together are the only state the router trusts.
type ConversationSession struct {
	ID                    string     `json:"id" gorm:"primaryKey;type:text"`
	UserID                string     `json:"user_id" gorm:"type:text;not null;uniqueIndex"`
	Mode                  string     `json:"mode" gorm:"type:text;not null;default:idle"`
	StateToken            string     `json:"state_token" gorm:"type:text;not null;default:idle"`
	LinkupID              *string    `json:"linkup_id" gorm:"type:text;index"`
	CurrentStepID         string     `json:"current_step_id" gorm:"type:text"`
	LastInboundMessageSID string     `json:"last_inbound_message_sid" gorm:"type:text"`
	PausedAt              *time.Time `json:"paused_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// BeforeCreate fills the primary key and the idle defaults.
func (s *ConversationSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Mode == "" {
		s.Mode = "idle"
	}
	if s.StateToken == "" {
		s.StateToken = "idle"
	}
	return nil
}

// IsPaused reports whether the user paused messaging for this session.
func (s *ConversationSession) IsPaused() bool {
	return s.PausedAt != nil
}
