package handlers

import "github.com/gofiber/fiber/v2"

// HealthHandler handles health check requests
type HealthHandler struct {
	Version          string
	Environment      string
	StorageType      string
	TwilioConfigured bool
	// Ping checks the database; nil when running on the memory store.
	Ping func() error
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, environment, storageType string, twilioConfigured bool, ping func() error) *HealthHandler {
	return &HealthHandler{
		Version:          version,
		Environment:      environment,
		StorageType:      storageType,
		TwilioConfigured: twilioConfigured,
		Ping:             ping,
	}
}

// Info describes the service and its endpoints.
func (h *HealthHandler) Info(c *fiber.Ctx) error {
	response := fiber.Map{
		"service":     "LinkUp Backend API",
		"version":     h.Version,
		"status":      "healthy",
		"environment": h.Environment,
		"storage":     h.StorageType,
		"sms": fiber.Map{
			"configured": h.TwilioConfigured,
		},
		"endpoints": fiber.Map{
			"health":          "/health",
			"sms_webhook":     "/webhook/sms",
			"sms_status":      "/webhook/sms/status",
			"onboarding_step": "/internal/onboarding/step",
		},
	}
	if h.Ping != nil {
		dbStatus := "connected"
		if err := h.Ping(); err != nil {
			dbStatus = "error: " + err.Error()
		}
		response["database"] = fiber.Map{"status": dbStatus}
	}
	return c.JSON(response)
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "healthy"
	statusCode := fiber.StatusOK
	if h.Ping != nil && h.Ping() != nil {
		status = "unhealthy"
		statusCode = fiber.StatusServiceUnavailable
	}
	return c.Status(statusCode).JSON(fiber.Map{
		"status":  status,
		"version": h.Version,
		"services": fiber.Map{
			"database": status == "healthy",
			"twilio":   h.TwilioConfigured,
		},
	})
}
