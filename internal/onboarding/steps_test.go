package onboarding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
)

func TestIdempotencyKey(t *testing.T) {
	require.Equal(t, "onboarding:p1:s1:onboarding_message_2", IdempotencyKey("p1", "s1", StepMessage2))
	require.Equal(t, IdempotencyKey("p1", "s1", StepMessage1), IdempotencyKey("p1", "s1", StepMessage1))
}

func TestStepTable(t *testing.T) {
	s1, _ := LookupStep(StepMessage1)
	s2, _ := LookupStep(StepMessage2)
	s3, _ := LookupStep(StepMessage3)
	s4, _ := LookupStep(StepMessage4)

	require.Equal(t, 8000*time.Millisecond, s1.DelayToNext)
	require.Equal(t, 8000*time.Millisecond, s2.DelayToNext)
	require.Equal(t, time.Duration(0), s3.DelayToNext)
	require.Empty(t, s4.Next)
	require.Equal(t, conversation.TokenOnboardingInterviewStart, s4.AdvanceToken)

	// each step expects exactly what the previous one advanced to
	require.Equal(t, s1.AdvanceToken, s2.ExpectedToken)
	require.Equal(t, s2.AdvanceToken, s3.ExpectedToken)
	require.Equal(t, s3.AdvanceToken, s4.ExpectedToken)
}

func TestStepPayloadValidate(t *testing.T) {
	good, err := NewStepPayload("p1", "s1", StepMessage1)
	require.NoError(t, err)
	step, err := good.Validate()
	require.NoError(t, err)
	require.Equal(t, StepMessage1, step.ID)

	tampered := good
	tampered.IdempotencyKey = "onboarding:p1:s2:onboarding_message_1"
	_, err = tampered.Validate()
	require.ErrorIs(t, err, ErrInvalidPayload)

	wrongToken := good
	wrongToken.ExpectedStateToken = conversation.TokenOnboardingBurstMessage3
	_, err = wrongToken.Validate()
	require.ErrorIs(t, err, ErrInvalidPayload)

	unknown := good
	unknown.StepID = "onboarding_message_9"
	unknown.IdempotencyKey = IdempotencyKey("p1", "s1", "onboarding_message_9")
	_, err = unknown.Validate()
	require.ErrorIs(t, err, ErrInvalidPayload)

	missing := good
	missing.SessionID = ""
	_, err = missing.Validate()
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = NewStepPayload("p1", "s1", "nope")
	require.ErrorIs(t, err, ErrInvalidPayload)
}
