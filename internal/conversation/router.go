package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/intent"
	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
	"github.com/Ananth-NQI/linkup-backend/internal/utils"
)

// Router decides which engine handles an inbound message.
type Router struct {
	store      storage.Store
	classifier *intent.Classifier
	logger     *zap.Logger
}

func NewRouter(store storage.Store, classifier *intent.Classifier, logger *zap.Logger) *Router {
	if classifier == nil {
		classifier = intent.New(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: store, classifier: classifier, logger: logger}
}

// IsCommandKeyword reports whether the normalized body is handled by the
// system command route: the global keywords plus the resubscribe keywords.
func IsCommandKeyword(normalizedBody string) bool {
	return intent.IsSystemKeyword(normalizedBody) || isResubscribeKeyword(normalizedBody)
}

// RouteMessage computes the routing decision for msg. The only write it makes
// before dispatch is the idle to onboarding promotion.
func (r *Router) RouteMessage(ctx context.Context, msg InboundMessage) (RoutingDecision, error) {
	// System keywords work for anyone, with or without a user record.
	if IsCommandKeyword(msg.NormalizedBody) {
		decision := RoutingDecision{
			Route:  RouteSystemCommand,
			Intent: &intent.Result{Intent: intent.SystemCommand, Confidence: intent.ConfidenceCertain},
		}
		r.logDecision(msg, decision, "system_keyword")
		return decision, nil
	}

	// Replies to a contact invitation may come from numbers that are not users yet.
	invite, err := r.store.GetPendingContactInvitation(ctx, utils.HashAddress(msg.From))
	switch {
	case err == nil && invite != nil:
		// the sender is unknown here: identity is resolved after this check
		res := r.classifier.Classify(ctx, intent.Input{
			Text:                    msg.Body,
			IsUnknownSender:         true,
			HasPendingContactInvite: true,
		})
		decision := RoutingDecision{Route: RouteForIntent(res.Intent), Intent: &res}
		r.logDecision(msg, decision, "pending_contact_invite")
		return decision, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return RoutingDecision{}, fmt.Errorf("lookup contact invitation: %w", err)
	}

	user, err := r.store.GetUserByPhone(ctx, msg.From)
	if errors.Is(err, storage.ErrNotFound) {
		return RoutingDecision{}, newError(ErrorMissingUserState, "no user for sender", err)
	}
	if err != nil {
		return RoutingDecision{}, fmt.Errorf("lookup user: %w", err)
	}

	session, err := r.store.GetOrCreateSession(ctx, user.ID)
	if err != nil {
		return RoutingDecision{}, fmt.Errorf("load session: %w", err)
	}
	if err := ValidateState(sessionState(session)); err != nil {
		return RoutingDecision{}, err
	}

	if session.LinkupID != nil {
		moved, err := r.store.AutoTransitionCompletedLinkup(ctx, session.ID)
		if err != nil {
			return RoutingDecision{}, err
		}
		if moved {
			if session, err = r.reloadSession(ctx, session.ID); err != nil {
				return RoutingDecision{}, err
			}
		}
	}

	profile, err := r.store.GetProfileByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return RoutingDecision{}, fmt.Errorf("load profile: %w", err)
	}
	complete := profile != nil && profile.IsCompleteMVP
	safetyHold := profile != nil && profile.SafetyHoldActive

	promoted := false
	// a paused session is not promoted; its text is ignored until START
	if Mode(session.Mode) == ModeIdle && !complete && !safetyHold && !session.IsPaused() {
		promoted, err = r.store.PromoteIdleSession(ctx, session.ID, string(ModeInterviewing), TokenOnboardingOpening)
		if err != nil {
			return RoutingDecision{}, err
		}
		// winner or not, continue from what is stored now
		if session, err = r.reloadSession(ctx, session.ID); err != nil {
			return RoutingDecision{}, err
		}
	}

	state := sessionState(session)
	route, err := ResolveRouteForState(state)
	if err != nil {
		return RoutingDecision{}, err
	}
	next, _ := DefaultNextTransition(state.Mode)

	decision := RoutingDecision{
		UserID:               user.ID,
		SessionID:            session.ID,
		State:                state,
		ProfileIsCompleteMVP: complete,
		Route:                route,
		NextTransition:       next,
		Promoted:             promoted,
	}

	reason := "state_default"
	switch {
	case safetyHold:
		decision.Route = RouteSafetyHold
		decision.SafetyOverrideApplied = true
		reason = "safety_override"
	case !DeterminesIntent(state.Mode):
		res := r.classifier.Classify(ctx, intent.Input{
			Text: msg.Body,
			Mode: classifierMode(state),
		})
		decision.Intent = &res
		decision.Route = RouteForIntent(res.Intent)
		reason = "intent"
	}

	r.logDecision(msg, decision, reason)
	return decision, nil
}

func (r *Router) reloadSession(ctx context.Context, id string) (*models.ConversationSession, error) {
	session, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	if err := ValidateState(sessionState(session)); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *Router) logDecision(msg InboundMessage, d RoutingDecision, reason string) {
	fields := []zap.Field{
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", d.UserID),
		zap.String("session_id", d.SessionID),
		zap.String("mode", string(d.State.Mode)),
		zap.String("state_token", d.State.Token),
		zap.String("route", string(d.Route)),
		zap.String("reason", reason),
		zap.Bool("profile_is_complete_mvp", d.ProfileIsCompleteMVP),
		zap.Bool("safety_override_applied", d.SafetyOverrideApplied),
		zap.Bool("promoted", d.Promoted),
	}
	if d.Intent != nil {
		fields = append(fields,
			zap.String("intent", string(d.Intent.Intent)),
			zap.Float64("confidence", d.Intent.Confidence))
	}
	r.logger.Info("routing decision", fields...)
}

func sessionState(s *models.ConversationSession) State {
	return State{Mode: Mode(s.Mode), Token: s.StateToken}
}

// classifierMode exposes idle sub-states to the classifier.
func classifierMode(s State) string {
	if _, sub, ok := strings.Cut(s.Token, ":"); ok && s.Mode == ModeIdle {
		return sub
	}
	return string(s.Mode)
}
