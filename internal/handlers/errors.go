package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
	"github.com/Ananth-NQI/linkup-backend/internal/services"
)

// ErrorHandler is the app-wide fiber error handler. Router invariant
// violations are logged at error with their code; everything else keeps the
// status it was raised with.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if rc, ok := conversation.ErrorCodeOf(err); ok {
			fields = append(fields, zap.String("error_code", string(rc)))
			logger.Error("router invariant violated", fields...)
			return c.Status(code).JSON(fiber.Map{"error": "internal error", "code": rc})
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}

// failed answers a processing failure. Transient failures get a 500 so the
// caller retries; permanent ones get permanentStatus.
func failed(c *fiber.Ctx, err error, permanentStatus int) error {
	if services.IsRetryable(err) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"retryable": true})
	}
	return c.Status(permanentStatus).JSON(fiber.Map{"retryable": false, "error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
