package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/onboarding"
	"github.com/Ananth-NQI/linkup-backend/internal/services"
)

// OnboardingHandler receives scheduled burst steps.
type OnboardingHandler struct {
	orchestrator *onboarding.Orchestrator
	logger       *zap.Logger
}

func NewOnboardingHandler(orchestrator *onboarding.Orchestrator, logger *zap.Logger) *OnboardingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardingHandler{orchestrator: orchestrator, logger: logger}
}

// HandleStep runs one step. Skips and permanent send failures answer 200 so
// the scheduler does not retry; transient failures answer 500 so it does.
func (h *OnboardingHandler) HandleStep(c *fiber.Ctx) error {
	var payload onboarding.StepPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("invalid onboarding step body", zap.Error(err))
		return badRequest(c, "Invalid step payload")
	}

	out, err := h.orchestrator.RunStep(c.UserContext(), payload)
	switch {
	case errors.Is(err, onboarding.ErrInvalidPayload):
		h.logger.Warn("onboarding step rejected",
			zap.String("session_id", payload.SessionID),
			zap.String("step_id", payload.StepID),
			zap.Error(err))
		return badRequest(c, err.Error())
	case err != nil:
		h.logger.Warn("onboarding step failed",
			zap.String("session_id", payload.SessionID),
			zap.String("step_id", payload.StepID),
			zap.Bool("retryable", services.IsRetryable(err)),
			zap.Error(err))
		// the scheduler retries any non-2xx answer
		return failed(c, err, fiber.StatusOK)
	}

	resp := fiber.Map{"status": out.Status}
	if out.Reason != "" {
		resp["reason"] = out.Reason
	}
	if out.Rescheduled {
		resp["rescheduled"] = true
	}
	if out.NextJobID != "" {
		resp["next_job_id"] = out.NextJobID
	}
	return c.JSON(resp)
}
