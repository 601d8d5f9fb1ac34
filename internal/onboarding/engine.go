package onboarding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
)

// Engine is the conversation engine for onboarding tokens.
type Engine struct {
	orchestrator *Orchestrator
	states       *conversation.StateWriter
	logger       *zap.Logger
}

func NewEngine(orchestrator *Orchestrator, states *conversation.StateWriter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{orchestrator: orchestrator, states: states, logger: logger}
}

var _ conversation.Engine = (*Engine)(nil)

// Handle answers one inbound message during onboarding. While a burst token
// is active the message gets no reply and the state is left alone.
func (e *Engine) Handle(ctx context.Context, req conversation.EngineRequest) (conversation.DispatchResult, error) {
	session := req.Session
	if session == nil {
		return conversation.DispatchResult{}, &conversation.RouterError{
			Code:   conversation.ErrorMissingUserState,
			Reason: "onboarding without a session",
		}
	}
	token := session.StateToken
	if !conversation.IsOnboardingToken(token) {
		return conversation.DispatchResult{}, &conversation.RouterError{
			Code:   conversation.ErrorInvalidState,
			Reason: fmt.Sprintf("onboarding engine cannot handle token %q", token),
		}
	}

	if req.Decision.Promoted && token == conversation.TokenOnboardingOpening {
		return conversation.Reply(conversation.RouteOnboarding, openingMessage(req)), nil
	}

	if conversation.IsBurstToken(token) {
		e.logger.Info("inbound held during onboarding burst",
			zap.String("session_id", session.ID),
			zap.String("state_token", token))
		return conversation.NoReply(conversation.RouteOnboarding), nil
	}

	plan := HandleInbound(token, req.Message.Body)

	if plan.StartBurst {
		if req.Profile == nil {
			return conversation.DispatchResult{}, &conversation.RouterError{
				Code:   conversation.ErrorMissingUserState,
				Reason: "onboarding burst without a profile",
			}
		}
		if err := e.orchestrator.StartBurst(ctx, session, req.Profile.ID); err != nil {
			return conversation.DispatchResult{}, err
		}
		return conversation.NoReply(conversation.RouteOnboarding), nil
	}

	if plan.NextToken != token {
		if err := e.states.Transition(ctx, session, conversation.ModeInterviewing, plan.NextToken); err != nil {
			return conversation.DispatchResult{}, err
		}
	}
	if plan.Handoff {
		e.logger.Info("onboarding complete; interview started", zap.String("session_id", session.ID))
	}
	if len(plan.Messages) == 0 {
		return conversation.NoReply(conversation.RouteOnboarding), nil
	}
	return conversation.Reply(conversation.RouteOnboarding, plan.Messages[0]), nil
}

func openingMessage(req conversation.EngineRequest) string {
	if req.User != nil && req.User.FirstName != "" {
		return fmt.Sprintf(msgOpeningNamed, req.User.FirstName)
	}
	return msgOpening
}
