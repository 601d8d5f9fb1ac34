package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("storage: not found")

// Tokens written by the linked-plan auto-transition. The operation is owned by
// the store so that the check and the write happen atomically.
const (
	postEventMode            = "post_event"
	postEventAttendanceToken = "post_event:attendance"
)

// auto-transition only moves sessions that are still waiting on the plan
var autoTransitionModes = map[string]bool{
	"idle":                  true,
	"linkup_forming":        true,
	"awaiting_invite_reply": true,
}

// StatusTransition is a forward move of an outbound message's two status
// columns, guarded by their current values.
type StatusTransition struct {
	FromStatus    string
	FromJobStatus string
	ToStatus      string
	ToJobStatus   string
}

// Store defines the interface for storage operations
type Store interface {
	// User operations
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	SetUserOptOut(ctx context.Context, userID string, optedOut bool) error

	// Profile operations
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error)
	SaveInterviewAnswers(ctx context.Context, profileID, answers string, complete bool) error

	// Session operations
	GetSession(ctx context.Context, id string) (*models.ConversationSession, error)
	GetOrCreateSession(ctx context.Context, userID string) (*models.ConversationSession, error)
	UpdateSessionState(ctx context.Context, sessionID, mode, token string) error
	// PromoteIdleSession moves the session only while mode is still idle.
	PromoteIdleSession(ctx context.Context, sessionID, mode, token string) (bool, error)
	// CompareAndSwapStateToken moves the token only while it equals fromToken.
	CompareAndSwapStateToken(ctx context.Context, sessionID, fromToken, toToken, stepID string) (bool, error)
	// ClaimInboundMessage records messageSID as the last inbound message unless
	// it already is. False means the message was claimed before.
	ClaimInboundMessage(ctx context.Context, sessionID, messageSID string) (bool, error)
	ReleaseInboundMessage(ctx context.Context, sessionID, messageSID, previousSID string) error
	SetSessionPaused(ctx context.Context, sessionID string, paused bool) error
	// AutoTransitionCompletedLinkup moves the session to post_event attendance
	// when its linked plan has completed. It runs as one atomic operation.
	AutoTransitionCompletedLinkup(ctx context.Context, sessionID string) (bool, error)

	// Contact invitation operations
	GetPendingContactInvitation(ctx context.Context, phoneHash string) (*models.ContactInvitation, error)
	RespondToContactInvitation(ctx context.Context, id, status string) (bool, error)

	// Outbound message operations
	GetOutboundMessageByKey(ctx context.Context, key string) (*models.OutboundMessage, error)
	GetOutboundMessageByProviderID(ctx context.Context, providerMessageID string) (*models.OutboundMessage, error)
	// InsertOutboundMessage ignores duplicates on the idempotency key.
	InsertOutboundMessage(ctx context.Context, msg *models.OutboundMessage) (bool, error)
	// ClaimOutboundSend takes the send lease on an undelivered row: job status
	// moves to sending unless another attempt holds a lease newer than staleBefore.
	ClaimOutboundSend(ctx context.Context, key string, staleBefore time.Time) (bool, error)
	MarkOutboundMessageSent(ctx context.Context, key, providerMessageID, status, from string) error
	// RecordOutboundFailure releases the send lease and keeps the row undelivered.
	RecordOutboundFailure(ctx context.Context, key, reason string) error
	AdvanceOutboundStatus(ctx context.Context, id string, t StatusTransition) (bool, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DatabaseStore)(nil)
)
