package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
	"github.com/Ananth-NQI/linkup-backend/internal/services"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// SMSWebhookPayload is an inbound message posted by Twilio.
type SMSWebhookPayload struct {
	MessageSid          string `form:"MessageSid"`
	AccountSid          string `form:"AccountSid"`
	MessagingServiceSid string `form:"MessagingServiceSid"`
	From                string `form:"From"`
	To                  string `form:"To"`
	Body                string `form:"Body"`
	NumMedia            string `form:"NumMedia"`
}

// SMSStatusPayload is a delivery status callback posted by Twilio.
type SMSStatusPayload struct {
	MessageSid    string `form:"MessageSid"`
	MessageStatus string `form:"MessageStatus"`
	ErrorCode     string `form:"ErrorCode"`
}

// SMSHandler handles the Twilio webhooks.
type SMSHandler struct {
	inbound *conversation.InboundService
	status  *services.DeliveryStatusService
	logger  *zap.Logger
}

// NewSMSHandler creates a new SMS handler
func NewSMSHandler(inbound *conversation.InboundService, status *services.DeliveryStatusService, logger *zap.Logger) *SMSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSHandler{inbound: inbound, status: status, logger: logger}
}

// HandleInbound processes one inbound SMS. Replies go out through the
// messages API, so the webhook answers with empty TwiML.
func (h *SMSHandler) HandleInbound(c *fiber.Ctx) error {
	var payload SMSWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("invalid sms webhook payload", zap.Error(err))
		return badRequest(c, "Invalid webhook payload")
	}
	if payload.MessageSid == "" || payload.From == "" {
		h.logger.Warn("sms webhook missing fields",
			zap.String("message_sid", payload.MessageSid),
			zap.Bool("has_from", payload.From != ""))
		return badRequest(c, "MessageSid and From are required")
	}

	msg := conversation.NewInboundMessage(payload.MessageSid, payload.MessageSid, payload.From, payload.To, payload.Body)
	out, err := h.inbound.Handle(c.UserContext(), msg)
	if err != nil {
		if _, ok := conversation.ErrorCodeOf(err); ok {
			return err
		}
		h.logger.Warn("inbound message failed",
			zap.String("message_sid", payload.MessageSid),
			zap.Bool("retryable", services.IsRetryable(err)),
			zap.Error(err))
		return failed(c, err, fiber.StatusUnprocessableEntity)
	}

	h.logger.Info("inbound message handled",
		zap.String("message_sid", payload.MessageSid),
		zap.String("route", string(out.Decision.Route)),
		zap.Bool("duplicate", out.Duplicate),
		zap.Bool("replied", out.Reply != nil),
		zap.String("skipped", out.Skipped))

	c.Set(fiber.HeaderContentType, fiber.MIMETextXMLCharsetUTF8)
	return c.SendString(emptyTwiML)
}

// HandleStatus applies a delivery status callback. Unknown statuses are
// acknowledged; a callback for a message whose provider id is not recorded
// yet answers 500 so the provider tries again.
func (h *SMSHandler) HandleStatus(c *fiber.Ctx) error {
	var payload SMSStatusPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("invalid status callback payload", zap.Error(err))
		return badRequest(c, "Invalid status payload")
	}
	if payload.MessageSid == "" || payload.MessageStatus == "" {
		return badRequest(c, "MessageSid and MessageStatus are required")
	}

	res, err := h.status.Apply(c.UserContext(), services.StatusUpdate{
		ProviderMessageID: payload.MessageSid,
		ProviderStatus:    payload.MessageStatus,
		ErrorCode:         payload.ErrorCode,
	})
	if errors.Is(err, services.ErrUnknownMessage) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"outcome":   services.StatusOutcomeUnknownMessage,
			"retryable": true,
		})
	}
	if err != nil {
		h.logger.Warn("status callback failed", zap.String("message_sid", payload.MessageSid), zap.Error(err))
		return failed(c, err, fiber.StatusUnprocessableEntity)
	}
	return c.JSON(fiber.Map{
		"outcome":    res.Outcome,
		"status":     res.Status,
		"job_status": res.JobStatus,
	})
}
