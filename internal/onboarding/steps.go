package onboarding

import (
	"errors"
	"fmt"
	"time"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
)

// Burst step ids, in order.
const (
	StepMessage1 = "onboarding_message_1"
	StepMessage2 = "onboarding_message_2"
	StepMessage3 = "onboarding_message_3"
	StepMessage4 = "onboarding_message_4"
)

// Step is one message of the burst. ExpectedToken must hold before it runs and
// AdvanceToken is written after it sends.
type Step struct {
	ID            string
	Message       string
	ExpectedToken string
	AdvanceToken  string
	Next          string
	DelayToNext   time.Duration
}

var steps = map[string]Step{
	StepMessage1: {
		ID:            StepMessage1,
		Message:       msgBurst1,
		ExpectedToken: conversation.TokenOnboardingBurst,
		AdvanceToken:  conversation.TokenOnboardingBurstMessage2,
		Next:          StepMessage2,
		DelayToNext:   8000 * time.Millisecond,
	},
	StepMessage2: {
		ID:            StepMessage2,
		Message:       msgBurst2,
		ExpectedToken: conversation.TokenOnboardingBurstMessage2,
		AdvanceToken:  conversation.TokenOnboardingBurstMessage3,
		Next:          StepMessage3,
		DelayToNext:   8000 * time.Millisecond,
	},
	StepMessage3: {
		ID:            StepMessage3,
		Message:       msgBurst3,
		ExpectedToken: conversation.TokenOnboardingBurstMessage3,
		AdvanceToken:  conversation.TokenOnboardingBurstMessage4,
		Next:          StepMessage4,
		DelayToNext:   0,
	},
	StepMessage4: {
		ID:            StepMessage4,
		Message:       msgBurst4,
		ExpectedToken: conversation.TokenOnboardingBurstMessage4,
		AdvanceToken:  conversation.TokenOnboardingInterviewStart,
	},
}

// LookupStep returns the step definition for id.
func LookupStep(id string) (Step, bool) {
	s, ok := steps[id]
	return s, ok
}

// StepPayload is the body of a scheduled step callback.
type StepPayload struct {
	ProfileID          string `json:"profile_id"`
	SessionID          string `json:"session_id"`
	StepID             string `json:"step_id"`
	ExpectedStateToken string `json:"expected_state_token"`
	IdempotencyKey     string `json:"idempotency_key"`
}

// ErrInvalidPayload marks a step payload that is malformed or tampered with.
var ErrInvalidPayload = errors.New("invalid onboarding step payload")

// IdempotencyKey derives the key for a step from stable identifiers only.
func IdempotencyKey(profileID, sessionID, stepID string) string {
	return fmt.Sprintf("onboarding:%s:%s:%s", profileID, sessionID, stepID)
}

// NewStepPayload builds the payload that runs stepID.
func NewStepPayload(profileID, sessionID, stepID string) (StepPayload, error) {
	step, ok := LookupStep(stepID)
	if !ok {
		return StepPayload{}, fmt.Errorf("%w: unknown step %q", ErrInvalidPayload, stepID)
	}
	return StepPayload{
		ProfileID:          profileID,
		SessionID:          sessionID,
		StepID:             stepID,
		ExpectedStateToken: step.ExpectedToken,
		IdempotencyKey:     IdempotencyKey(profileID, sessionID, stepID),
	}, nil
}

// Validate checks the payload shape and that its key and expected token match
// what its own fields derive.
func (p StepPayload) Validate() (Step, error) {
	switch {
	case p.ProfileID == "":
		return Step{}, fmt.Errorf("%w: profile_id is required", ErrInvalidPayload)
	case p.SessionID == "":
		return Step{}, fmt.Errorf("%w: session_id is required", ErrInvalidPayload)
	case p.StepID == "":
		return Step{}, fmt.Errorf("%w: step_id is required", ErrInvalidPayload)
	case p.ExpectedStateToken == "":
		return Step{}, fmt.Errorf("%w: expected_state_token is required", ErrInvalidPayload)
	case p.IdempotencyKey == "":
		return Step{}, fmt.Errorf("%w: idempotency_key is required", ErrInvalidPayload)
	}
	step, ok := LookupStep(p.StepID)
	if !ok {
		return Step{}, fmt.Errorf("%w: unknown step %q", ErrInvalidPayload, p.StepID)
	}
	if want := IdempotencyKey(p.ProfileID, p.SessionID, p.StepID); p.IdempotencyKey != want {
		return Step{}, fmt.Errorf("%w: idempotency_key does not match its fields", ErrInvalidPayload)
	}
	if p.ExpectedStateToken != step.ExpectedToken {
		return Step{}, fmt.Errorf("%w: expected_state_token %q does not belong to %s", ErrInvalidPayload, p.ExpectedStateToken, p.StepID)
	}
	return step, nil
}
