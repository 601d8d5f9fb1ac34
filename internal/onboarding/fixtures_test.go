package onboarding

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/services"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

const stepURL = "https://api.example.com/internal/onboarding/step"

type fakeSender struct {
	mu   sync.Mutex
	sent []services.SendRequest
	errs []error
}

func (s *fakeSender) Send(_ context.Context, req services.SendRequest) (services.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return services.SendResult{}, err
		}
	}
	s.sent = append(s.sent, req)
	return services.SendResult{ProviderMessageID: fmt.Sprintf("SM%d", len(s.sent)), Status: "queued"}, nil
}

func (s *fakeSender) Sent() []services.SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.SendRequest(nil), s.sent...)
}

type fakeScheduler struct {
	mu         sync.Mutex
	calls      []services.ScheduleRequest
	err        error
	onSchedule func(services.ScheduleRequest)
}

func (s *fakeScheduler) Schedule(_ context.Context, req services.ScheduleRequest) (string, error) {
	if s.onSchedule != nil {
		s.onSchedule(req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.calls = append(s.calls, req)
	return fmt.Sprintf("job_%d", len(s.calls)), nil
}

func (s *fakeScheduler) Calls() []services.ScheduleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.ScheduleRequest(nil), s.calls...)
}

func (s *fakeScheduler) payload(t *testing.T, i int) StepPayload {
	t.Helper()
	calls := s.Calls()
	require.Greater(t, len(calls), i)
	p, ok := calls[i].Payload.(StepPayload)
	require.True(t, ok)
	return p
}

type fixture struct {
	store        *storage.MemoryStore
	sender       *fakeSender
	scheduler    *fakeScheduler
	delivery     *services.Delivery
	orchestrator *Orchestrator
	user         *models.User
	profile      *models.Profile
	session      *models.ConversationSession
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	return newFixtureWithStore(t, storage.NewMemoryStore(), token)
}

func newFixtureWithStore(t *testing.T, store *storage.MemoryStore, token string) *fixture {
	t.Helper()
	f := &fixture{store: store, sender: &fakeSender{}, scheduler: &fakeScheduler{}}
	f.delivery = services.NewDelivery(f.store, f.sender, "", nil)
	f.orchestrator = NewOrchestrator(f.store, f.scheduler, f.delivery, stepURL, nil)
	f.user = f.store.AddUser(&models.User{Phone: "+15551234567", FirstName: "Sam"})
	f.profile = f.store.AddProfile(&models.Profile{UserID: f.user.ID})
	f.session = f.store.PutSession(&models.ConversationSession{
		UserID:     f.user.ID,
		Mode:       string(conversation.ModeInterviewing),
		StateToken: token,
	})
	return f
}

func (f *fixture) payload(t *testing.T, stepID string) StepPayload {
	t.Helper()
	p, err := NewStepPayload(f.profile.ID, f.session.ID, stepID)
	require.NoError(t, err)
	return p
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), f.session.ID)
	require.NoError(t, err)
	return s.StateToken
}
