package conversation

import (
	"context"

	"github.com/Ananth-NQI/linkup-backend/internal/intent"
	"github.com/Ananth-NQI/linkup-backend/internal/models"
)

// RoutingDecision is computed per inbound message and passed to Dispatch.
// UserID and SessionID are empty for the identity-free short-circuit routes.
type RoutingDecision struct {
	UserID                string
	SessionID             string
	State                 State
	ProfileIsCompleteMVP  bool
	Route                 Route
	SafetyOverrideApplied bool
	NextTransition        Mode
	// Intent is set when the classifier ran or a short-circuit matched.
	Intent *intent.Result
	// Promoted is true when this request moved the session out of idle.
	Promoted bool
}

// DispatchResult is an engine's answer. Engine must equal the dispatched route.
type DispatchResult struct {
	Engine Route
	Reply  *string
}

// Reply builds a result carrying a reply for route.
func Reply(route Route, text string) DispatchResult {
	return DispatchResult{Engine: route, Reply: &text}
}

// NoReply builds a result without an outbound message.
func NoReply(route Route) DispatchResult {
	return DispatchResult{Engine: route}
}

// EngineRequest is what an engine receives. Session, User and Profile are nil
// on the short-circuit routes that run without identity.
type EngineRequest struct {
	Route    Route
	Decision RoutingDecision
	Message  InboundMessage
	Session  *models.ConversationSession
	User     *models.User
	Profile  *models.Profile
}

// Engine handles messages for one route.
type Engine interface {
	Handle(ctx context.Context, req EngineRequest) (DispatchResult, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req EngineRequest) (DispatchResult, error)

func (f EngineFunc) Handle(ctx context.Context, req EngineRequest) (DispatchResult, error) {
	return f(ctx, req)
}
