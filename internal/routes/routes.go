package routes

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/handlers"
	"github.com/Ananth-NQI/linkup-backend/internal/middleware"
)

// Handlers groups the HTTP handlers the routes bind.
type Handlers struct {
	Health     *handlers.HealthHandler
	SMS        *handlers.SMSHandler
	Onboarding *handlers.OnboardingHandler
}

// Options controls request verification.
type Options struct {
	Twilio    middleware.SignatureVerifier
	Scheduler middleware.SchedulerVerifier
	// DisableWebhookValidation skips provider signatures, for local tunnels only.
	DisableWebhookValidation bool
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h Handlers, opts Options, logger *zap.Logger) {
	app.Get("/", h.Health.Info)
	app.Get("/health", h.Health.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook", middleware.RequireFormContentType(logger))
	if opts.DisableWebhookValidation {
		logger.Warn("sms webhook signature validation DISABLED")
		webhooks.Post("/sms", h.SMS.HandleInbound)
		webhooks.Post("/sms/status", h.SMS.HandleStatus)
	} else {
		signed := middleware.ValidateTwilioSignature(opts.Twilio, logger)
		webhooks.Post("/sms", signed, h.SMS.HandleInbound)
		webhooks.Post("/sms/status", signed, h.SMS.HandleStatus)
	}

	// ========== SCHEDULER CALLBACKS ==========
	internal := app.Group("/internal", middleware.ValidateSchedulerSignature(opts.Scheduler, logger))
	internal.Post("/onboarding/step", h.Onboarding.HandleStep)
}
