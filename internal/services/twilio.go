package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// SendRequest is one outbound SMS.
type SendRequest struct {
	To                string
	Body              string
	IdempotencyKey    string
	StatusCallbackURL string
}

// SendResult is what the provider returned on acceptance.
type SendResult struct {
	ProviderMessageID string
	Status            string
	// ResolvedFrom is the sending number, which the provider picks when a
	// messaging service is used.
	ResolvedFrom string
}

// Sender sends SMS messages.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// SendError wraps a provider failure with its retry classification.
type SendError struct {
	Retryable bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("send failed (retryable): %v", e.Err)
	}
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a send failure worth retrying. Errors
// that are not SendErrors are treated as transient.
func IsRetryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return err != nil
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	api                 messageCreator
	from                string
	messagingServiceSID string
	logger              *zap.Logger
}

// TwilioOptions configures NewTwilioSender. MessagingServiceSID wins over
// FromNumber when both are set.
type TwilioOptions struct {
	AccountSID          string
	AuthToken           string
	FromNumber          string
	MessagingServiceSID string
}

// NewTwilioSender creates a sender backed by the Twilio REST client.
func NewTwilioSender(opts TwilioOptions, logger *zap.Logger) (*TwilioSender, error) {
	if opts.AccountSID == "" || opts.AuthToken == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}
	if opts.FromNumber == "" && opts.MessagingServiceSID == "" {
		return nil, fmt.Errorf("either a from number or a messaging service SID is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: opts.AccountSID,
		Password: opts.AuthToken,
	})

	return newTwilioSender(client.Api, opts, logger), nil
}

func newTwilioSender(api messageCreator, opts TwilioOptions, logger *zap.Logger) *TwilioSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwilioSender{
		api:                 api,
		from:                opts.FromNumber,
		messagingServiceSID: opts.MessagingServiceSID,
		logger:              logger,
	}
}

// Send submits the message. The Twilio client has no context support, so ctx
// is only checked before the call.
func (t *TwilioSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, &SendError{Retryable: true, Err: err}
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(req.To)
	params.SetBody(req.Body)
	if t.messagingServiceSID != "" {
		params.SetMessagingServiceSid(t.messagingServiceSID)
	} else {
		params.SetFrom(t.from)
	}
	if req.StatusCallbackURL != "" {
		params.SetStatusCallback(req.StatusCallbackURL)
	}

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		retryable := classifyTwilioError(err)
		t.logger.Warn("sms send failed",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Bool("retryable", retryable),
			zap.Error(err))
		return SendResult{}, &SendError{Retryable: retryable, Err: err}
	}

	result := SendResult{ResolvedFrom: t.from}
	if resp.Sid != nil {
		result.ProviderMessageID = *resp.Sid
	}
	if resp.Status != nil {
		result.Status = *resp.Status
	}
	if resp.From != nil && *resp.From != "" {
		result.ResolvedFrom = *resp.From
	}
	if result.ProviderMessageID == "" {
		return SendResult{}, &SendError{Retryable: true, Err: errors.New("provider returned no message id")}
	}

	t.logger.Info("sms sent",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("provider_message_id", result.ProviderMessageID),
		zap.String("status", result.Status))
	return result, nil
}

// Rate limits and server errors are retryable; other API errors are not.
// Errors that never reached the API (network, timeouts) are retryable.
func classifyTwilioError(err error) bool {
	var restErr *twilioClient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status == http.StatusTooManyRequests || restErr.Status >= http.StatusInternalServerError
	}
	return true
}
