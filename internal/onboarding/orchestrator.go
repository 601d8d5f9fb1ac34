package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/services"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

// Step outcome statuses.
const (
	StepStatusSent    = "sent"
	StepStatusSkipped = "skipped"
)

// Skip reasons.
const (
	SkipSessionMissing   = "session_missing"
	SkipSessionInactive  = "session_inactive"
	SkipStaleState       = "stale_state"
	SkipSafetyHold       = "safety_hold"
	SkipSessionPaused    = "session_paused"
	SkipAlreadyDelivered = "already_delivered"
)

var (
	// ErrDeliveryNotRecorded means the send could not be confirmed after the
	// advance; the advance was rolled back and the step should be retried.
	ErrDeliveryNotRecorded = errors.New("onboarding step delivery not recorded")
	// ErrScheduleFailed wraps a scheduler failure; the caller should retry.
	ErrScheduleFailed = errors.New("onboarding step could not be scheduled")
)

// StepOutcome is the result of one step callback.
type StepOutcome struct {
	Status string
	Reason string
	// Rescheduled is set when a replay re-issued the next step.
	Rescheduled bool
	NextJobID   string
}

// Orchestrator drives the timed onboarding burst. It never waits in process:
// each step schedules the next through the external scheduler.
type Orchestrator struct {
	store     storage.Store
	scheduler services.Scheduler
	delivery  *services.Delivery
	stepURL   string
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator. stepURL is the public URL of the
// step callback endpoint.
func NewOrchestrator(store storage.Store, scheduler services.Scheduler, delivery *services.Delivery, stepURL string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		scheduler: scheduler,
		delivery:  delivery,
		stepURL:   stepURL,
		logger:    logger,
	}
}

// StartBurst persists awaiting_burst and only then schedules the first step.
// If scheduling fails the token is put back so the user's next reply retries.
func (o *Orchestrator) StartBurst(ctx context.Context, session *models.ConversationSession, profileID string) error {
	swapped, err := o.store.CompareAndSwapStateToken(ctx, session.ID,
		conversation.TokenOnboardingExplanation, conversation.TokenOnboardingBurst, "")
	if err != nil {
		return err
	}
	if !swapped {
		current, err := o.store.GetSession(ctx, session.ID)
		if err != nil {
			return err
		}
		if current.StateToken != conversation.TokenOnboardingBurst {
			o.logger.Info("burst not started: session moved on",
				zap.String("session_id", session.ID),
				zap.String("state_token", current.StateToken))
			return nil
		}
		// already persisted by an earlier attempt; scheduling is deduplicated
	}
	session.StateToken = conversation.TokenOnboardingBurst

	jobID, err := o.schedule(ctx, profileID, session.ID, StepMessage1, 0)
	if err != nil {
		if _, rbErr := o.store.CompareAndSwapStateToken(ctx, session.ID,
			conversation.TokenOnboardingBurst, conversation.TokenOnboardingExplanation, ""); rbErr != nil {
			o.logger.Error("failed to revert burst start", zap.String("session_id", session.ID), zap.Error(rbErr))
		}
		session.StateToken = conversation.TokenOnboardingExplanation
		return err
	}

	o.logger.Info("onboarding burst started",
		zap.String("session_id", session.ID),
		zap.String("profile_id", profileID),
		zap.String("job_id", jobID))
	return nil
}

// RunStep executes one scheduled step. Eligibility failures are skips, not
// errors. Returned errors are either ErrInvalidPayload or retryable.
func (o *Orchestrator) RunStep(ctx context.Context, p StepPayload) (StepOutcome, error) {
	step, err := p.Validate()
	if err != nil {
		return StepOutcome{}, err
	}
	log := o.logger.With(
		zap.String("session_id", p.SessionID),
		zap.String("step_id", p.StepID),
		zap.String("idempotency_key", p.IdempotencyKey))

	session, err := o.store.GetSession(ctx, p.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return o.skip(log, SkipSessionMissing), nil
	}
	if err != nil {
		return StepOutcome{}, err
	}
	if conversation.Mode(session.Mode) != conversation.ModeInterviewing {
		return o.skip(log, SkipSessionInactive), nil
	}

	profile, err := o.store.GetProfile(ctx, p.ProfileID)
	if errors.Is(err, storage.ErrNotFound) {
		return o.skip(log, SkipSessionMissing), nil
	}
	if err != nil {
		return StepOutcome{}, err
	}
	if profile.UserID != session.UserID {
		return StepOutcome{}, fmt.Errorf("%w: profile does not belong to session", ErrInvalidPayload)
	}

	if session.StateToken != p.ExpectedStateToken {
		out := o.skip(log, SkipStaleState)
		if session.StateToken == step.AdvanceToken {
			// replay after the advance: the next step may never have been scheduled
			return o.rescheduleNext(ctx, log, p, step, out)
		}
		return out, nil
	}
	if profile.SafetyHoldActive {
		return o.skip(log, SkipSafetyHold), nil
	}
	if session.IsPaused() {
		return o.skip(log, SkipSessionPaused), nil
	}

	delivered, err := o.delivery.IsDelivered(ctx, p.IdempotencyKey)
	if err != nil {
		return StepOutcome{}, err
	}
	if delivered {
		// sent before a crash that lost the advance; finish it
		out := o.skip(log, SkipAlreadyDelivered)
		if err := o.advance(ctx, p, step); err != nil {
			return StepOutcome{}, err
		}
		return o.rescheduleNext(ctx, log, p, step, out)
	}

	user, err := o.store.GetUser(ctx, session.UserID)
	if err != nil {
		return StepOutcome{}, fmt.Errorf("load user: %w", err)
	}
	res, err := o.delivery.DeliverOnce(ctx, services.DeliveryRequest{
		Key:    p.IdempotencyKey,
		UserID: user.ID,
		To:     user.Phone,
		Body:   step.Message,
	})
	if err != nil {
		log.Warn("onboarding step send failed", zap.Error(err))
		return StepOutcome{}, err
	}
	if res.AlreadyDelivered {
		out := o.skip(log, SkipAlreadyDelivered)
		if err := o.advance(ctx, p, step); err != nil {
			return StepOutcome{}, err
		}
		return o.rescheduleNext(ctx, log, p, step, out)
	}

	advanced, err := o.store.CompareAndSwapStateToken(ctx, p.SessionID, step.ExpectedToken, step.AdvanceToken, step.ID)
	if err != nil {
		return StepOutcome{}, err
	}
	if !advanced {
		// a concurrent replay advanced first and owns scheduling
		return o.skip(log, SkipStaleState), nil
	}

	confirmed, err := o.delivery.IsDelivered(ctx, p.IdempotencyKey)
	if err != nil || !confirmed {
		if _, rbErr := o.store.CompareAndSwapStateToken(ctx, p.SessionID, step.AdvanceToken, step.ExpectedToken, session.CurrentStepID); rbErr != nil {
			log.Error("failed to roll back step advance", zap.Error(rbErr))
		}
		log.Warn("delivery record missing after advance; rolled back", zap.Error(err))
		if err != nil {
			return StepOutcome{}, err
		}
		return StepOutcome{}, ErrDeliveryNotRecorded
	}

	out := StepOutcome{Status: StepStatusSent}
	if step.Next != "" {
		jobID, err := o.schedule(ctx, p.ProfileID, p.SessionID, step.Next, step.DelayToNext)
		if err != nil {
			// a scheduler retry of this step takes the reschedule path above
			return StepOutcome{}, err
		}
		out.NextJobID = jobID
	}
	log.Info("onboarding step sent",
		zap.String("advanced_to", step.AdvanceToken),
		zap.String("next_step", step.Next))
	return out, nil
}

func (o *Orchestrator) advance(ctx context.Context, p StepPayload, step Step) error {
	_, err := o.store.CompareAndSwapStateToken(ctx, p.SessionID, step.ExpectedToken, step.AdvanceToken, step.ID)
	return err
}

func (o *Orchestrator) rescheduleNext(ctx context.Context, log *zap.Logger, p StepPayload, step Step, out StepOutcome) (StepOutcome, error) {
	if step.Next == "" {
		return out, nil
	}
	jobID, err := o.schedule(ctx, p.ProfileID, p.SessionID, step.Next, step.DelayToNext)
	if err != nil {
		return StepOutcome{}, err
	}
	log.Info("next onboarding step re-issued", zap.String("next_step", step.Next), zap.String("job_id", jobID))
	out.Rescheduled = true
	out.NextJobID = jobID
	return out, nil
}

func (o *Orchestrator) schedule(ctx context.Context, profileID, sessionID, stepID string, delay time.Duration) (string, error) {
	payload, err := NewStepPayload(profileID, sessionID, stepID)
	if err != nil {
		return "", err
	}
	jobID, err := o.scheduler.Schedule(ctx, services.ScheduleRequest{
		Destination:     o.stepURL,
		Payload:         payload,
		Delay:           delay,
		DeduplicationID: payload.IdempotencyKey,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrScheduleFailed, stepID, err)
	}
	return jobID, nil
}

func (o *Orchestrator) skip(log *zap.Logger, reason string) StepOutcome {
	log.Info("onboarding step skipped", zap.String("reason", reason))
	return StepOutcome{Status: StepStatusSkipped, Reason: reason}
}
