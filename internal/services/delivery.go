package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

// DefaultSendLease is how long an in-flight send blocks other attempts on the
// same key before they may take it over.
const DefaultSendLease = 30 * time.Second

// ErrSendInProgress means another attempt holds the send lease for the key.
var ErrSendInProgress = errors.New("send already in progress")

// DeliveryRequest is a logical outbound message keyed for idempotency.
type DeliveryRequest struct {
	Key    string
	UserID string
	To     string
	Body   string
}

// DeliveryOutcome reports what DeliverOnce did.
type DeliveryOutcome struct {
	Message          *models.OutboundMessage
	AlreadyDelivered bool
}

// Delivery sends outbound messages at most once per idempotency key, using the
// outbound message table as the ledger.
type Delivery struct {
	store             storage.Store
	sender            Sender
	statusCallbackURL string
	lease             time.Duration
	logger            *zap.Logger
	now               func() time.Time
}

// NewDelivery creates the idempotent delivery service. statusCallbackURL may be
// empty.
func NewDelivery(store storage.Store, sender Sender, statusCallbackURL string, logger *zap.Logger) *Delivery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Delivery{
		store:             store,
		sender:            sender,
		statusCallbackURL: statusCallbackURL,
		lease:             DefaultSendLease,
		logger:            logger,
		now:               time.Now,
	}
}

// IsDelivered reports whether the carrier accepted the message for key.
func (d *Delivery) IsDelivered(ctx context.Context, key string) (bool, error) {
	msg, err := d.store.GetOutboundMessageByKey(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return msg.Delivered(), nil
}

// Recorded reports whether a ledger row exists for key, delivered or not.
func (d *Delivery) Recorded(ctx context.Context, key string) (*models.OutboundMessage, error) {
	msg, err := d.store.GetOutboundMessageByKey(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return msg, err
}

// DeliverOnce sends req unless a message with the same key was already
// delivered. The first recorded body wins, so retries send identical text.
// Send failures are returned as *SendError and leave the row undelivered.
func (d *Delivery) DeliverOnce(ctx context.Context, req DeliveryRequest) (DeliveryOutcome, error) {
	if req.Key == "" {
		return DeliveryOutcome{}, fmt.Errorf("deliver: idempotency key is required")
	}

	msg, err := d.store.GetOutboundMessageByKey(ctx, req.Key)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		row := &models.OutboundMessage{
			IdempotencyKey: req.Key,
			UserID:         req.UserID,
			ToPhone:        req.To,
			Body:           req.Body,
		}
		if _, err := d.store.InsertOutboundMessage(ctx, row); err != nil {
			return DeliveryOutcome{}, err
		}
		// re-read: a concurrent attempt may have inserted first
		if msg, err = d.store.GetOutboundMessageByKey(ctx, req.Key); err != nil {
			return DeliveryOutcome{}, err
		}
	default:
		return DeliveryOutcome{}, err
	}

	if msg.Delivered() {
		d.logger.Info("outbound message already delivered", zap.String("idempotency_key", req.Key))
		return DeliveryOutcome{Message: msg, AlreadyDelivered: true}, nil
	}

	return d.send(ctx, msg)
}

// Redeliver resends a recorded but undelivered message. It is used when an
// inbound retry finds the reply was stored but never accepted.
func (d *Delivery) Redeliver(ctx context.Context, key string) (DeliveryOutcome, error) {
	msg, err := d.store.GetOutboundMessageByKey(ctx, key)
	if err != nil {
		return DeliveryOutcome{}, err
	}
	if msg.Delivered() {
		return DeliveryOutcome{Message: msg, AlreadyDelivered: true}, nil
	}
	return d.send(ctx, msg)
}

func (d *Delivery) send(ctx context.Context, msg *models.OutboundMessage) (DeliveryOutcome, error) {
	claimed, err := d.store.ClaimOutboundSend(ctx, msg.IdempotencyKey, d.now().Add(-d.lease))
	if err != nil {
		return DeliveryOutcome{}, err
	}
	if !claimed {
		current, err := d.store.GetOutboundMessageByKey(ctx, msg.IdempotencyKey)
		if err == nil && current.Delivered() {
			return DeliveryOutcome{Message: current, AlreadyDelivered: true}, nil
		}
		return DeliveryOutcome{}, &SendError{Retryable: true, Err: ErrSendInProgress}
	}

	result, err := d.sender.Send(ctx, SendRequest{
		To:                msg.ToPhone,
		Body:              msg.Body,
		IdempotencyKey:    msg.IdempotencyKey,
		StatusCallbackURL: d.statusCallbackURL,
	})
	if err != nil {
		if recErr := d.store.RecordOutboundFailure(ctx, msg.IdempotencyKey, err.Error()); recErr != nil {
			d.logger.Error("failed to record send failure",
				zap.String("idempotency_key", msg.IdempotencyKey), zap.Error(recErr))
		}
		var se *SendError
		if !errors.As(err, &se) {
			err = &SendError{Retryable: true, Err: err}
		}
		return DeliveryOutcome{}, err
	}

	status := result.Status
	if status == "" {
		status = models.MessageStatusAccepted
	}
	if err := d.store.MarkOutboundMessageSent(ctx, msg.IdempotencyKey, result.ProviderMessageID, status, result.ResolvedFrom); err != nil {
		// the carrier has the message; a retry would send it again
		d.logger.Error("sent message could not be recorded",
			zap.String("idempotency_key", msg.IdempotencyKey),
			zap.String("provider_message_id", result.ProviderMessageID),
			zap.Error(err))
		return DeliveryOutcome{}, fmt.Errorf("deliver: record sent message: %w", err)
	}

	msg.ProviderMessageID = result.ProviderMessageID
	msg.Status = status
	msg.JobStatus = models.JobStatusSent
	msg.FromPhone = result.ResolvedFrom
	return DeliveryOutcome{Message: msg}, nil
}
