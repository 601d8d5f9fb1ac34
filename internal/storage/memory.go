package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
)

// MemoryStore holds all data in memory. It backs tests and local runs with
// USE_MEMORY_STORE=true and honours the same conditional-update semantics as
// the database store.
type MemoryStore struct {
	mu sync.Mutex

	users       map[string]*models.User
	profiles    map[string]*models.Profile
	sessions    map[string]*models.ConversationSession
	invitations map[string]*models.ContactInvitation
	linkups     map[string]*models.Linkup
	outbound    map[string]*models.OutboundMessage // by idempotency key
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*models.User),
		profiles:    make(map[string]*models.Profile),
		sessions:    make(map[string]*models.ConversationSession),
		invitations: make(map[string]*models.ContactInvitation),
		linkups:     make(map[string]*models.Linkup),
		outbound:    make(map[string]*models.OutboundMessage),
	}
}

// Seeding helpers. Provisioning lives outside the conversation core, so these
// are not part of Store.

func (m *MemoryStore) AddUser(u *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Phone = models.NormalizePhone(u.Phone)
	cp := *u
	m.users[u.ID] = &cp
	return u
}

func (m *MemoryStore) AddProfile(p *models.Profile) *models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return p
}

func (m *MemoryStore) AddContactInvitation(i *models.ContactInvitation) *models.ContactInvitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = models.InvitationStatusPending
	}
	cp := *i
	m.invitations[i.ID] = &cp
	return i
}

func (m *MemoryStore) AddLinkup(l *models.Linkup) *models.Linkup {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	cp := *l
	m.linkups[l.ID] = &cp
	return l
}

// PutSession replaces a session row wholesale.
func (m *MemoryStore) PutSession(s *models.ConversationSession) *models.ConversationSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return s
}

// SetLinkupStatus updates a linkup's status.
func (m *MemoryStore) SetLinkupStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.linkups[id]
	if !ok {
		return ErrNotFound
	}
	l.Status = status
	return nil
}

// OutboundMessages returns a snapshot of every outbound row.
func (m *MemoryStore) OutboundMessages() []models.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OutboundMessage, 0, len(m.outbound))
	for _, msg := range m.outbound {
		out = append(out, *msg)
	}
	return out
}

// DeleteOutboundMessage drops a ledger row. Tests use it to simulate a lost write.
func (m *MemoryStore) DeleteOutboundMessage(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outbound, key)
}

// User operations
func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByPhone(_ context.Context, phone string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	phone = models.NormalizePhone(phone)
	for _, u := range m.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SetUserOptOut(_ context.Context, userID string, optedOut bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.OptedOut = optedOut
	u.UpdatedAt = time.Now()
	return nil
}

// Profile operations
func (m *MemoryStore) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetProfileByUserID(_ context.Context, userID string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SaveInterviewAnswers(_ context.Context, profileID, answers string, complete bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profileID]
	if !ok {
		return ErrNotFound
	}
	p.InterviewAnswers = answers
	if complete {
		p.IsCompleteMVP = true
	}
	p.UpdatedAt = time.Now()
	return nil
}

// Session operations
func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetOrCreateSession(_ context.Context, userID string) (*models.ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	now := time.Now()
	s := &models.ConversationSession{
		ID:         uuid.NewString(),
		UserID:     userID,
		Mode:       "idle",
		StateToken: "idle",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpdateSessionState(_ context.Context, sessionID, mode, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Mode = mode
	s.StateToken = token
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) PromoteIdleSession(_ context.Context, sessionID, mode, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Mode != "idle" {
		return false, nil
	}
	s.Mode = mode
	s.StateToken = token
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) CompareAndSwapStateToken(_ context.Context, sessionID, fromToken, toToken, stepID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.StateToken != fromToken {
		return false, nil
	}
	s.StateToken = toToken
	s.CurrentStepID = stepID
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) ClaimInboundMessage(_ context.Context, sessionID, messageSID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, ErrNotFound
	}
	if s.LastInboundMessageSID == messageSID {
		return false, nil
	}
	s.LastInboundMessageSID = messageSID
	return true, nil
}

func (m *MemoryStore) ReleaseInboundMessage(_ context.Context, sessionID, messageSID, previousSID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.LastInboundMessageSID == messageSID {
		s.LastInboundMessageSID = previousSID
	}
	return nil
}

func (m *MemoryStore) SetSessionPaused(_ context.Context, sessionID string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if paused {
		now := time.Now()
		s.PausedAt = &now
	} else {
		s.PausedAt = nil
	}
	return nil
}

func (m *MemoryStore) AutoTransitionCompletedLinkup(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, ErrNotFound
	}
	if s.LinkupID == nil || !autoTransitionModes[s.Mode] {
		return false, nil
	}
	l, ok := m.linkups[*s.LinkupID]
	if !ok || l.Status != models.LinkupStatusCompleted {
		return false, nil
	}
	s.Mode = postEventMode
	s.StateToken = postEventAttendanceToken
	s.UpdatedAt = time.Now()
	return true, nil
}

// Contact invitation operations
func (m *MemoryStore) GetPendingContactInvitation(_ context.Context, phoneHash string) (*models.ContactInvitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.ContactInvitation
	for _, inv := range m.invitations {
		if inv.InviteePhoneHash != phoneHash || inv.Status != models.InvitationStatusPending {
			continue
		}
		if found == nil || inv.CreatedAt.After(found.CreatedAt) {
			found = inv
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *MemoryStore) RespondToContactInvitation(_ context.Context, id, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return false, ErrNotFound
	}
	if inv.Status != models.InvitationStatusPending {
		return false, nil
	}
	now := time.Now()
	inv.Status = status
	inv.RespondedAt = &now
	return true, nil
}

// Outbound message operations
func (m *MemoryStore) GetOutboundMessageByKey(_ context.Context, key string) (*models.OutboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.outbound[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *MemoryStore) GetOutboundMessageByProviderID(_ context.Context, providerMessageID string) (*models.OutboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.outbound {
		if msg.ProviderMessageID == providerMessageID {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) InsertOutboundMessage(_ context.Context, msg *models.OutboundMessage) (bool, error) {
	if msg.IdempotencyKey == "" {
		return false, fmt.Errorf("storage: outbound message requires an idempotency key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.outbound[msg.IdempotencyKey]; exists {
		return false, nil
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusAccepted
	}
	if msg.JobStatus == "" {
		msg.JobStatus = models.JobStatusPending
	}
	now := time.Now()
	msg.CreatedAt, msg.UpdatedAt = now, now
	cp := *msg
	m.outbound[msg.IdempotencyKey] = &cp
	return true, nil
}

func (m *MemoryStore) ClaimOutboundSend(_ context.Context, key string, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.outbound[key]
	if !ok {
		return false, ErrNotFound
	}
	if msg.ProviderMessageID != "" {
		return false, nil
	}
	if msg.JobStatus == models.JobStatusSending && !msg.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	msg.JobStatus = models.JobStatusSending
	msg.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) MarkOutboundMessageSent(_ context.Context, key, providerMessageID, status, from string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.outbound[key]
	if !ok {
		return ErrNotFound
	}
	msg.ProviderMessageID = providerMessageID
	msg.Status = status
	msg.JobStatus = models.JobStatusSent
	msg.FromPhone = from
	msg.LastError = ""
	msg.Attempts++
	msg.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) RecordOutboundFailure(_ context.Context, key, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.outbound[key]
	if !ok {
		return ErrNotFound
	}
	msg.LastError = reason
	msg.JobStatus = models.JobStatusPending
	msg.Attempts++
	msg.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AdvanceOutboundStatus(_ context.Context, id string, t StatusTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.outbound {
		if msg.ID != id {
			continue
		}
		if msg.Status != t.FromStatus || msg.JobStatus != t.FromJobStatus {
			return false, nil
		}
		msg.Status = t.ToStatus
		msg.JobStatus = t.ToJobStatus
		msg.UpdatedAt = time.Now()
		return true, nil
	}
	return false, ErrNotFound
}
