package conversation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

// EngineTable binds every route to its engine. A new route needs a field here
// and a case in engineFor.
type EngineTable struct {
	SystemCommand         Engine
	ContactInviteResponse Engine
	Default               Engine
	OpenIntent            Engine
	NamedPlanRequest      Engine
	PlanSocialChoice      Engine
	Onboarding            Engine
	ProfileInterview      Engine
	LinkupForming         Engine
	InviteReply           Engine
	PostEvent             Engine
	SafetyHold            Engine
}

func (t EngineTable) engineFor(r Route) (Engine, error) {
	var e Engine
	switch r {
	case RouteSystemCommand:
		e = t.SystemCommand
	case RouteContactInviteResponse:
		e = t.ContactInviteResponse
	case RouteDefault:
		e = t.Default
	case RouteOpenIntent:
		e = t.OpenIntent
	case RouteNamedPlanRequest:
		e = t.NamedPlanRequest
	case RoutePlanSocialChoice:
		e = t.PlanSocialChoice
	case RouteOnboarding:
		e = t.Onboarding
	case RouteProfileInterview:
		e = t.ProfileInterview
	case RouteLinkupForming:
		e = t.LinkupForming
	case RouteInviteReply:
		e = t.InviteReply
	case RoutePostEvent:
		e = t.PostEvent
	case RouteSafetyHold:
		e = t.SafetyHold
	default:
		return nil, newError(ErrorUnknownRoute, fmt.Sprintf("route %q", r), nil)
	}
	if e == nil {
		return nil, newError(ErrorUnknownRoute, fmt.Sprintf("no engine bound for %q", r), nil)
	}
	return e, nil
}

// Dispatcher invokes the engine for a routing decision.
type Dispatcher struct {
	store  storage.Store
	table  EngineTable
	logger *zap.Logger
}

func NewDispatcher(store storage.Store, table EngineTable, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, table: table, logger: logger}
}

// Dispatch runs the engine for decision. The route is recomputed from the
// current session so a stale state-derived route is corrected; intent-derived
// routes are kept.
func (d *Dispatcher) Dispatch(ctx context.Context, decision RoutingDecision, msg InboundMessage) (DispatchResult, error) {
	route := decision.Route
	if !route.Valid() {
		return DispatchResult{}, newError(ErrorUnknownRoute, fmt.Sprintf("route %q", route), nil)
	}

	req := EngineRequest{Decision: decision, Message: msg}

	if decision.SessionID != "" {
		session, err := d.store.GetSession(ctx, decision.SessionID)
		if err != nil {
			return DispatchResult{}, fmt.Errorf("dispatch: load session: %w", err)
		}
		current := sessionState(session)
		expected, err := ResolveRouteForState(current)
		if err != nil {
			return DispatchResult{}, err
		}

		user, err := d.store.GetUser(ctx, decision.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return DispatchResult{}, newError(ErrorMissingUserState, "user disappeared before dispatch", err)
			}
			return DispatchResult{}, fmt.Errorf("dispatch: load user: %w", err)
		}
		profile, err := d.store.GetProfileByUserID(ctx, decision.UserID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return DispatchResult{}, fmt.Errorf("dispatch: load profile: %w", err)
		}
		if profile != nil && profile.SafetyHoldActive {
			expected = RouteSafetyHold
		}

		if route != expected && !route.IntentDerived() {
			d.logger.Warn("correcting stale route",
				zap.String("session_id", session.ID),
				zap.String("requested_route", string(route)),
				zap.String("corrected_route", string(expected)),
				zap.String("decided_state", decision.State.String()),
				zap.String("current_state", current.String()))
			route = expected
		}

		req.Session = session
		req.User = user
		req.Profile = profile
	}
	req.Route = route

	engine, err := d.table.engineFor(route)
	if err != nil {
		return DispatchResult{}, err
	}

	result, err := engine.Handle(ctx, req)
	if err != nil {
		return DispatchResult{}, err
	}
	if result.Engine != route {
		return DispatchResult{}, newError(ErrorEngineRouteMismatch,
			fmt.Sprintf("dispatched %s but engine answered as %s", route, result.Engine), nil)
	}

	d.logger.Debug("dispatched",
		zap.String("message_id", msg.MessageID),
		zap.String("route", string(route)),
		zap.Bool("has_reply", result.Reply != nil))
	return result, nil
}
