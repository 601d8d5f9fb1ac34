package onboarding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
	"github.com/Ananth-NQI/linkup-backend/internal/intent"
	"github.com/Ananth-NQI/linkup-backend/internal/services"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type conversationStack struct {
	*fixture
	inbound *conversation.InboundService
}

func newConversationStack(t *testing.T, token string) *conversationStack {
	t.Helper()
	f := newFixture(t, token)
	states := conversation.NewStateWriter(f.store, nil)
	table := conversation.NewEngines(f.store, states, nil).Table()
	table.Onboarding = NewEngine(f.orchestrator, states, nil)
	router := conversation.NewRouter(f.store, intent.New(nil), nil)
	dispatcher := conversation.NewDispatcher(f.store, table, nil)
	return &conversationStack{
		fixture: f,
		inbound: conversation.NewInboundService(f.store, router, dispatcher, f.delivery, nil),
	}
}

func (s *conversationStack) send(t *testing.T, sid, body string) conversation.InboundOutcome {
	t.Helper()
	out, err := s.inbound.Handle(context.Background(),
		conversation.NewInboundMessage(sid, "", s.user.Phone, "+15550000000", body))
	require.NoError(t, err)
	return out
}

func TestEngine_PromotedUserGetsOpening(t *testing.T) {
	s := newConversationStack(t, conversation.TokenOnboardingOpening)
	require.NoError(t, s.store.UpdateSessionState(context.Background(), s.session.ID,
		string(conversation.ModeIdle), conversation.TokenIdle))

	out := s.send(t, "SM1", "hey")
	require.True(t, out.Decision.Promoted)
	require.NotNil(t, out.Reply)
	assert.Contains(t, *out.Reply, "Sam")
	assert.Equal(t, conversation.TokenOnboardingOpening, s.token(t))
}

func TestEngine_OpeningThroughBurstStart(t *testing.T) {
	s := newConversationStack(t, conversation.TokenOnboardingOpening)

	out := s.send(t, "SM1", "sure")
	require.NotNil(t, out.Reply)
	assert.Equal(t, msgExplanation, *out.Reply)
	assert.Equal(t, conversation.TokenOnboardingExplanation, s.token(t))

	var tokenAtSchedule string
	s.scheduler.onSchedule = func(services.ScheduleRequest) {
		tokenAtSchedule = s.token(t)
	}
	sentBefore := len(s.sender.Sent())

	out = s.send(t, "SM2", "ok let's go")
	require.Nil(t, out.Reply)
	assert.Equal(t, conversation.TokenOnboardingBurst, tokenAtSchedule)
	assert.Equal(t, conversation.TokenOnboardingBurst, s.token(t))
	assert.Len(t, s.sender.Sent(), sentBefore, "burst messages are never sent inline")

	require.Len(t, s.scheduler.Calls(), 1)
	assert.Equal(t, StepMessage1, s.scheduler.payload(t, 0).StepID)
}

func TestEngine_BurstHoldsInbound(t *testing.T) {
	for _, token := range []string{
		conversation.TokenOnboardingBurst,
		conversation.TokenOnboardingBurstMessage2,
		conversation.TokenOnboardingBurstMessage4,
	} {
		t.Run(token, func(t *testing.T) {
			s := newConversationStack(t, token)
			out := s.send(t, "SM1", "hello?")
			require.Nil(t, out.Reply)
			require.Equal(t, token, s.token(t))
			require.Empty(t, s.sender.Sent())
			require.Empty(t, s.scheduler.Calls())
		})
	}
}

func TestEngine_NegativeAtOpening(t *testing.T) {
	s := newConversationStack(t, conversation.TokenOnboardingOpening)

	out := s.send(t, "SM1", "later")
	require.NotNil(t, out.Reply)
	assert.Equal(t, msgLater, *out.Reply)
	assert.Equal(t, conversation.TokenOnboardingOpening, s.token(t))
}

func TestEngine_HandsOffToInterview(t *testing.T) {
	s := newConversationStack(t, conversation.TokenOnboardingInterviewStart)

	out := s.send(t, "SM1", "ready")
	require.NotNil(t, out.Reply)
	assert.Equal(t, msgInterviewOpen, *out.Reply)
	assert.Equal(t, conversation.TokenInterviewEntry, s.token(t))

	// the next message belongs to the profile interview
	out = s.send(t, "SM2", "hiking and board games")
	assert.Equal(t, conversation.RouteProfileInterview, out.Decision.Route)
}

func TestEngine_DuplicateDoesNotRestartBurst(t *testing.T) {
	s := newConversationStack(t, conversation.TokenOnboardingExplanation)

	s.send(t, "SM1", "yes")
	out := s.send(t, "SM1", "yes")
	require.True(t, out.Duplicate)
	require.Len(t, s.scheduler.Calls(), 1)
}

func TestEngine_OpeningAfterResubscribe(t *testing.T) {
	s := newConversationStack(t, conversation.TokenOnboardingOpening)
	ctx := context.Background()
	require.NoError(t, s.store.UpdateSessionState(ctx, s.session.ID,
		string(conversation.ModeIdle), conversation.TokenIdle))
	require.NoError(t, s.store.SetSessionPaused(ctx, s.session.ID, true))

	out := s.send(t, "SM1", "hey")
	require.Equal(t, "session_paused", out.Skipped)
	require.Equal(t, conversation.TokenIdle, s.token(t))

	s.send(t, "SM2", "START")

	out = s.send(t, "SM3", "hi again")
	require.True(t, out.Decision.Promoted)
	require.NotNil(t, out.Reply)
	assert.Contains(t, *out.Reply, "Sam")
	assert.Equal(t, conversation.TokenOnboardingOpening, s.token(t))
}
