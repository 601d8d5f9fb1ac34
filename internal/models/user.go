package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a provisioned texting user. Users are created by signup flows outside
// this service; the conversation core only reads them.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	Phone     string    `json:"phone" gorm:"type:text;not null;uniqueIndex"` // E.164
	FirstName string    `json:"first_name"`
	OptedOut  bool      `json:"opted_out" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates the ID and normalizes the phone number
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Phone = NormalizePhone(u.Phone)
	return nil
}

// Profile holds the fields the router needs to pick a route.
type Profile struct {
	ID               string    `json:"id" gorm:"primaryKey;type:text"`
	UserID           string    `json:"user_id" gorm:"type:text;not null;uniqueIndex"`
	IsCompleteMVP    bool      `json:"is_complete_mvp" gorm:"default:false"`
	SafetyHoldActive bool      `json:"safety_hold_active" gorm:"default:false"`
	InterviewAnswers string    `json:"interview_answers"` // JSON object keyed by interview step
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// NormalizePhone strips carrier prefixes and formatting from an address.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "sms:")
	phone = strings.TrimPrefix(phone, "whatsapp:")
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(phone)
	if phone != "" && !strings.HasPrefix(phone, "+") {
		if len(phone) == 10 {
			phone = "+1" + phone
		} else {
			phone = "+" + phone
		}
	}
	return phone
}
