package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
	"github.com/Ananth-NQI/linkup-backend/internal/utils"
)

// route runs one message through routing and dispatch.
func (f *fixture) route(t *testing.T, sid, body string) DispatchResult {
	t.Helper()
	m := msg(sid, body)
	d, err := f.router.RouteMessage(context.Background(), m)
	require.NoError(t, err)
	res, err := f.dispatcher.Dispatch(context.Background(), d, m)
	require.NoError(t, err)
	return res
}

func (f *fixture) session(t *testing.T, userID string) *models.ConversationSession {
	t.Helper()
	s, err := f.store.GetOrCreateSession(context.Background(), userID)
	require.NoError(t, err)
	return s
}

func TestSystemCommand_StopAndStart(t *testing.T) {
	f := newFixture(t)
	u, _ := f.addUser(true)

	res := f.route(t, "SM1", "Stop")
	require.Equal(t, MsgOptedOut, *res.Reply)
	got, err := f.store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	require.True(t, got.OptedOut)
	require.True(t, f.session(t, u.ID).IsPaused())

	res = f.route(t, "SM2", "start")
	require.Equal(t, MsgResubscribed, *res.Reply)
	got, err = f.store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	require.False(t, got.OptedOut)
	require.False(t, f.session(t, u.ID).IsPaused())
}

func TestSystemCommand_HelpForUnknownSender(t *testing.T) {
	f := newFixture(t)
	res := f.route(t, "SM1", "info")
	require.Equal(t, MsgHelp, *res.Reply)

	res = f.route(t, "SM2", "quit")
	require.Equal(t, MsgOptedOut, *res.Reply)
}

func TestContactInviteResponse(t *testing.T) {
	f := newFixture(t)
	f.store.AddContactInvitation(&models.ContactInvitation{
		InviterUserID:    "inviter",
		InviteePhoneHash: utils.HashAddress(testPhone),
	})

	res := f.route(t, "SM1", "maybe?")
	require.Equal(t, MsgInviteReprompt, *res.Reply)

	res = f.route(t, "SM2", "yes")
	require.Equal(t, RouteContactInviteResponse, res.Engine)
	require.Equal(t, MsgInviteAccepted, *res.Reply)

	_, err := f.store.GetPendingContactInvitation(context.Background(), utils.HashAddress(testPhone))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOpenIntentThenSocialChoice(t *testing.T) {
	f := newFixture(t)
	u, _ := f.addUser(true)
	f.putSession(u.ID, ModeIdle, TokenIdle)

	res := f.route(t, "SM1", "want to get out this weekend")
	require.Equal(t, RouteOpenIntent, res.Engine)
	require.Equal(t, MsgSocialChoice, *res.Reply)
	require.Equal(t, TokenIdleAwaitingSocialChoice, f.session(t, u.ID).StateToken)

	res = f.route(t, "SM2", "hmm")
	require.Equal(t, RoutePlanSocialChoice, res.Engine)
	require.Equal(t, MsgSocialChoice, *res.Reply)

	res = f.route(t, "SM3", "1")
	require.Equal(t, MsgMatching, *res.Reply)
	s := f.session(t, u.ID)
	require.Equal(t, string(ModeLinkupForming), s.Mode)
	require.Equal(t, "linkup_forming:matching", s.StateToken)
}

func TestNamedPlanRequest(t *testing.T) {
	f := newFixture(t)
	u, _ := f.addUser(true)
	f.putSession(u.ID, ModeIdle, TokenIdle)

	res := f.route(t, "SM1", "drinks with my coworkers")
	require.Equal(t, RouteNamedPlanRequest, res.Engine)
	require.Equal(t, "linkup_forming:named_plan", f.session(t, u.ID).StateToken)
}

func TestProfileInterview_CompletesProfile(t *testing.T) {
	f := newFixture(t)
	u, p := f.addUser(false)
	f.putSession(u.ID, ModeInterviewing, TokenInterviewEntry)

	res := f.route(t, "SM1", "I teach middle school science")
	require.Equal(t, MsgInterviewInterests, *res.Reply)
	res = f.route(t, "SM2", "climbing and board games")
	require.Equal(t, MsgInterviewAvailability, *res.Reply)
	res = f.route(t, "SM3", "weekends")
	require.Equal(t, MsgInterviewComplete, *res.Reply)

	s := f.session(t, u.ID)
	require.Equal(t, string(ModeIdle), s.Mode)
	require.Equal(t, TokenIdle, s.StateToken)

	got, err := f.store.GetProfile(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, got.IsCompleteMVP)
	var answers map[string]string
	require.NoError(t, json.Unmarshal([]byte(got.InterviewAnswers), &answers))
	require.Equal(t, "climbing and board games", answers["interests"])
	require.Equal(t, "weekends", answers["availability"])
}

func TestInviteReply(t *testing.T) {
	f := newFixture(t)
	u, _ := f.addUser(true)
	f.putSession(u.ID, ModeAwaitingInviteReply, "awaiting_invite_reply:abc-123")

	res := f.route(t, "SM1", "what?")
	require.Equal(t, MsgInviteReprompt, *res.Reply)

	res = f.route(t, "SM2", "yes")
	require.Equal(t, MsgJoinedLinkup, *res.Reply)
	require.Equal(t, "linkup_forming:joined", f.session(t, u.ID).StateToken)
}

func TestPostEvent(t *testing.T) {
	f := newFixture(t)
	u, _ := f.addUser(true)
	f.putSession(u.ID, ModePostEvent, TokenPostEventAttendance)

	res := f.route(t, "SM1", "yes!")
	require.Equal(t, MsgPostEventAsk, *res.Reply)
	require.Equal(t, TokenPostEventFeedback, f.session(t, u.ID).StateToken)

	res = f.route(t, "SM2", "great group")
	require.Equal(t, MsgPostEventThanks, *res.Reply)
	require.Equal(t, TokenIdle, f.session(t, u.ID).StateToken)
}

func TestSafetyHoldAndLinkupForming(t *testing.T) {
	f := newFixture(t)
	u, _ := f.addUser(true)
	f.putSession(u.ID, ModeSafetyHold, "safety_hold")
	res := f.route(t, "SM1", "hello?")
	require.Equal(t, MsgSafetyHold, *res.Reply)

	f2 := newFixture(t)
	u2, _ := f2.addUser(true)
	f2.putSession(u2.ID, ModeLinkupForming, "linkup_forming")
	res = f2.route(t, "SM1", "any news")
	require.Equal(t, MsgLinkupForming, *res.Reply)
}

func TestTransition_RejectsIllegalMoves(t *testing.T) {
	f := newFixture(t)
	u, _ := f.addUser(true)
	s := f.putSession(u.ID, ModeInterviewing, TokenInterviewEntry)

	err := f.states.Transition(context.Background(), s, ModeLinkupForming, "linkup_forming")
	code, ok := ErrorCodeOf(err)
	require.True(t, ok)
	require.Equal(t, ErrorIllegalTransitionAttempt, code)

	err = f.states.Transition(context.Background(), s, ModeIdle, "idle:bogus")
	code, _ = ErrorCodeOf(err)
	require.Equal(t, ErrorInvalidState, code)

	// nothing was written
	require.Equal(t, TokenInterviewEntry, f.session(t, u.ID).StateToken)

	require.NoError(t, f.states.Transition(context.Background(), s, ModeIdle, TokenIdle))
	require.Equal(t, string(ModeIdle), s.Mode)
}
