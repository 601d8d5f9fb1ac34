package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
	"github.com/Ananth-NQI/linkup-backend/internal/utils"
)

// Reply texts.
const (
	MsgOptedOut        = "You're unsubscribed and won't get more texts from Linkup. Reply START to come back."
	MsgResubscribed    = "Welcome back! You'll hear from Linkup again. Reply STOP anytime to opt out."
	MsgHelp            = "Linkup helps you make plans over text. Reply STOP to opt out. Msg & data rates may apply."
	MsgInviteAccepted  = "You're in! We'll text you the details once the plan is set."
	MsgInviteDeclined  = "No problem, we won't reach out about this invite."
	MsgInviteReprompt  = "Reply YES to join or NO to pass."
	MsgInviteExpired   = "That invite has already been answered. Thanks!"
	MsgDefault         = "Tell me what you're up for this week and I'll help you make it happen."
	MsgSocialChoice    = "Want to meet new people (reply 1) or make a plan with friends (reply 2)?"
	MsgNamedPlan       = "Love it. Who's coming and when works for everyone?"
	MsgMatching        = "On it. I'll look for people who'd be a good fit and text you soon."
	MsgLinkupForming   = "We're still putting your plan together. I'll text you as soon as it's set."
	MsgJoinedLinkup    = "Great, you're in. I'll send details as the plan comes together."
	MsgDeclinedLinkup  = "No worries, maybe next time."
	MsgPostEventAsk    = "How was it? Anything you'd change next time?"
	MsgPostEventMissed = "Sorry you couldn't make it. Text me when you want to try again."
	MsgPostEventThanks = "Thanks for the feedback! Text me when you're ready for the next one."
	MsgPostEventDone   = "Welcome back! Tell me what you're up for next."
	MsgSafetyHold      = "Your account is paused while we review a report. We'll be in touch soon."

	MsgInterviewInterests    = "What kinds of things do you like doing?"
	MsgInterviewAvailability = "When are you usually free? Weeknights, weekends, both?"
	MsgInterviewComplete     = "You're all set! Text me anytime you want to make a plan."
)

var (
	optOutKeywords      = map[string]bool{"STOP": true, "UNSUBSCRIBE": true, "CANCEL": true, "END": true, "QUIT": true}
	resubscribeKeywords = map[string]bool{"START": true, "UNSTOP": true}
	yesWords            = map[string]bool{"YES": true, "Y": true, "YEAH": true, "YEP": true, "SURE": true, "OK": true, "OKAY": true, "IN": true, "I'M IN": true}
	noWords             = map[string]bool{"NO": true, "N": true, "NOPE": true, "NAH": true, "PASS": true}
)

func isResubscribeKeyword(normalizedBody string) bool {
	return resubscribeKeywords[normalizedBody]
}

// Engines holds the dependencies shared by the non-onboarding engines.
type Engines struct {
	store  storage.Store
	states *StateWriter
	logger *zap.Logger
}

func NewEngines(store storage.Store, states *StateWriter, logger *zap.Logger) *Engines {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engines{store: store, states: states, logger: logger}
}

// Table returns an engine table with every route bound except onboarding.
func (e *Engines) Table() EngineTable {
	return EngineTable{
		SystemCommand:         EngineFunc(e.systemCommand),
		ContactInviteResponse: EngineFunc(e.contactInviteResponse),
		Default:               EngineFunc(e.defaultEngine),
		OpenIntent:            EngineFunc(e.openIntent),
		NamedPlanRequest:      EngineFunc(e.namedPlanRequest),
		PlanSocialChoice:      EngineFunc(e.planSocialChoice),
		ProfileInterview:      EngineFunc(e.profileInterview),
		LinkupForming:         EngineFunc(e.linkupForming),
		InviteReply:           EngineFunc(e.inviteReply),
		PostEvent:             EngineFunc(e.postEvent),
		SafetyHold:            EngineFunc(e.safetyHold),
	}
}

// systemCommand runs without a routed session: it resolves the sender itself.
func (e *Engines) systemCommand(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	body := req.Message.NormalizedBody
	switch {
	case optOutKeywords[body]:
		if err := e.setOptOut(ctx, req.Message.From, true); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RouteSystemCommand, MsgOptedOut), nil
	case resubscribeKeywords[body]:
		if err := e.setOptOut(ctx, req.Message.From, false); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RouteSystemCommand, MsgResubscribed), nil
	default:
		return Reply(RouteSystemCommand, MsgHelp), nil
	}
}

// setOptOut records the preference and pauses or resumes the session. Unknown
// senders only get the confirmation.
func (e *Engines) setOptOut(ctx context.Context, phone string, optedOut bool) error {
	user, err := e.store.GetUserByPhone(ctx, phone)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.store.SetUserOptOut(ctx, user.ID, optedOut); err != nil {
		return err
	}
	session, err := e.store.GetOrCreateSession(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := e.store.SetSessionPaused(ctx, session.ID, optedOut); err != nil {
		return err
	}
	e.logger.Info("opt-out preference updated",
		zap.String("user_id", user.ID),
		zap.Bool("opted_out", optedOut))
	return nil
}

func (e *Engines) contactInviteResponse(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	inv, err := e.store.GetPendingContactInvitation(ctx, utils.HashAddress(req.Message.From))
	if errors.Is(err, storage.ErrNotFound) {
		return Reply(RouteContactInviteResponse, MsgInviteExpired), nil
	}
	if err != nil {
		return DispatchResult{}, err
	}

	var status, reply string
	switch body := req.Message.NormalizedBody; {
	case yesWords[body]:
		status, reply = models.InvitationStatusAccepted, MsgInviteAccepted
	case noWords[body]:
		status, reply = models.InvitationStatusDeclined, MsgInviteDeclined
	default:
		return Reply(RouteContactInviteResponse, MsgInviteReprompt), nil
	}

	ok, err := e.store.RespondToContactInvitation(ctx, inv.ID, status)
	if err != nil {
		return DispatchResult{}, err
	}
	if !ok {
		return Reply(RouteContactInviteResponse, MsgInviteExpired), nil
	}
	e.logger.Info("contact invitation answered",
		zap.String("invitation_id", inv.ID),
		zap.String("status", status))
	return Reply(RouteContactInviteResponse, reply), nil
}

func (e *Engines) defaultEngine(_ context.Context, _ EngineRequest) (DispatchResult, error) {
	return Reply(RouteDefault, MsgDefault), nil
}

func (e *Engines) openIntent(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	if err := e.moveFromIdle(ctx, req, ModeIdle, TokenIdleAwaitingSocialChoice); err != nil {
		return DispatchResult{}, err
	}
	return Reply(RouteOpenIntent, MsgSocialChoice), nil
}

func (e *Engines) namedPlanRequest(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	if err := e.moveFromIdle(ctx, req, ModeLinkupForming, "linkup_forming:named_plan"); err != nil {
		return DispatchResult{}, err
	}
	return Reply(RouteNamedPlanRequest, MsgNamedPlan), nil
}

func (e *Engines) planSocialChoice(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	switch req.Message.NormalizedBody {
	case "1", "NEW", "NEW PEOPLE", "SOLO":
		if err := e.moveFromIdle(ctx, req, ModeLinkupForming, "linkup_forming:matching"); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RoutePlanSocialChoice, MsgMatching), nil
	case "2", "FRIENDS", "WITH FRIENDS":
		if err := e.moveFromIdle(ctx, req, ModeLinkupForming, "linkup_forming:named_plan"); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RoutePlanSocialChoice, MsgNamedPlan), nil
	default:
		return Reply(RoutePlanSocialChoice, MsgSocialChoice), nil
	}
}

// moveFromIdle transitions only sessions that are still idle. Intent-derived
// routes are not corrected at dispatch, so the session may have moved on.
func (e *Engines) moveFromIdle(ctx context.Context, req EngineRequest, next Mode, token string) error {
	if req.Session == nil || Mode(req.Session.Mode) != ModeIdle {
		return nil
	}
	return e.states.Transition(ctx, req.Session, next, token)
}

type interviewAnswers map[string]string

var interviewQuestions = []struct {
	token     string
	answerKey string
	nextToken string
	nextText  string
}{
	{TokenInterviewEntry, "about", TokenInterviewInterests, MsgInterviewInterests},
	{TokenInterviewInterests, "interests", TokenInterviewAvailability, MsgInterviewAvailability},
	{TokenInterviewAvailability, "availability", "", MsgInterviewComplete},
}

func (e *Engines) profileInterview(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	if req.Profile == nil {
		return DispatchResult{}, newError(ErrorMissingUserState, "interview without a profile", nil)
	}
	for _, q := range interviewQuestions {
		if q.token != req.Session.StateToken {
			continue
		}

		answers := interviewAnswers{}
		if req.Profile.InterviewAnswers != "" {
			if err := json.Unmarshal([]byte(req.Profile.InterviewAnswers), &answers); err != nil {
				return DispatchResult{}, fmt.Errorf("decode interview answers: %w", err)
			}
		}
		answers[q.answerKey] = req.Message.Body
		encoded, err := json.Marshal(answers)
		if err != nil {
			return DispatchResult{}, err
		}

		done := q.nextToken == ""
		if err := e.store.SaveInterviewAnswers(ctx, req.Profile.ID, string(encoded), done); err != nil {
			return DispatchResult{}, err
		}
		if done {
			err = e.states.Transition(ctx, req.Session, ModeIdle, TokenIdle)
		} else {
			err = e.states.Transition(ctx, req.Session, ModeInterviewing, q.nextToken)
		}
		if err != nil {
			return DispatchResult{}, err
		}
		return Reply(RouteProfileInterview, q.nextText), nil
	}
	return DispatchResult{}, newError(ErrorInvalidState,
		fmt.Sprintf("interview engine cannot handle token %q", req.Session.StateToken), nil)
}

func (e *Engines) linkupForming(_ context.Context, _ EngineRequest) (DispatchResult, error) {
	return Reply(RouteLinkupForming, MsgLinkupForming), nil
}

func (e *Engines) inviteReply(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	switch body := req.Message.NormalizedBody; {
	case yesWords[body]:
		if err := e.states.Transition(ctx, req.Session, ModeLinkupForming, "linkup_forming:joined"); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RouteInviteReply, MsgJoinedLinkup), nil
	case noWords[body]:
		if err := e.states.Transition(ctx, req.Session, ModeIdle, TokenIdle); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RouteInviteReply, MsgDeclinedLinkup), nil
	default:
		return Reply(RouteInviteReply, MsgInviteReprompt), nil
	}
}

func (e *Engines) postEvent(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	body := req.Message.NormalizedBody
	switch req.Session.StateToken {
	case TokenPostEventAttendance:
		if noWords[body] {
			if err := e.states.Transition(ctx, req.Session, ModeIdle, TokenIdle); err != nil {
				return DispatchResult{}, err
			}
			return Reply(RoutePostEvent, MsgPostEventMissed), nil
		}
		if err := e.states.Transition(ctx, req.Session, ModePostEvent, TokenPostEventFeedback); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RoutePostEvent, MsgPostEventAsk), nil
	case TokenPostEventFeedback:
		e.logger.Info("post event feedback",
			zap.String("user_id", req.Decision.UserID),
			zap.Int("length", len(req.Message.Body)))
		if err := e.states.Transition(ctx, req.Session, ModeIdle, TokenIdle); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RoutePostEvent, MsgPostEventThanks), nil
	default:
		if err := e.states.Transition(ctx, req.Session, ModeIdle, TokenIdle); err != nil {
			return DispatchResult{}, err
		}
		return Reply(RoutePostEvent, MsgPostEventDone), nil
	}
}

func (e *Engines) safetyHold(_ context.Context, _ EngineRequest) (DispatchResult, error) {
	return Reply(RouteSafetyHold, MsgSafetyHold), nil
}
