package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

const maxStatusAdvanceAttempts = 3

// ErrUnknownMessage means no outbound message carries the provider id yet.
// A callback can beat the write of the id after send, so it is worth a retry.
var ErrUnknownMessage = errors.New("no outbound message for provider id")

// Outcomes of a delivery status callback.
const (
	StatusOutcomeUpdated        = "updated"
	StatusOutcomeIgnored        = "ignored"
	StatusOutcomeUnknownMessage = "unknown_message"
	StatusOutcomeUnknownStatus  = "unknown_status"
)

var messageStatusRank = map[string]int{
	models.MessageStatusAccepted:    0,
	models.MessageStatusQueued:      1,
	models.MessageStatusSending:     2,
	models.MessageStatusSent:        3,
	models.MessageStatusDelivered:   4,
	models.MessageStatusUndelivered: 4,
	models.MessageStatusFailed:      4,
	models.MessageStatusCanceled:    4,
	models.MessageStatusRead:        4,
}

var jobStatusRank = map[string]int{
	models.JobStatusPending:  0,
	models.JobStatusSending:  1,
	models.JobStatusSent:     2,
	models.JobStatusFailed:   2,
	models.JobStatusCanceled: 2,
}

const terminalRank = 4

// MapProviderStatus translates a provider status into the message status and
// job status vocabularies. ok is false for statuses we do not know.
func MapProviderStatus(providerStatus string) (messageStatus, jobStatus string, ok bool) {
	s := strings.ToLower(strings.TrimSpace(providerStatus))
	switch s {
	case "accepted", "queued", "scheduled":
		messageStatus, jobStatus = s, models.JobStatusPending
		if s == "scheduled" {
			messageStatus = models.MessageStatusQueued
		}
	case "sending":
		messageStatus, jobStatus = s, models.JobStatusSending
	case "sent", "delivered", "read":
		messageStatus, jobStatus = s, models.JobStatusSent
	case "partially_delivered":
		messageStatus, jobStatus = models.MessageStatusSent, models.JobStatusSent
	case "undelivered", "failed":
		messageStatus, jobStatus = s, models.JobStatusFailed
	case "canceled":
		messageStatus, jobStatus = s, models.JobStatusCanceled
	default:
		return "", "", false
	}
	return messageStatus, jobStatus, true
}

// forward returns next if it ranks above current and current is not terminal.
func forward(ranks map[string]int, terminal int, current, next string) string {
	cur, known := ranks[current]
	if !known {
		return next
	}
	if cur >= terminal {
		return current
	}
	if ranks[next] > cur {
		return next
	}
	return current
}

// StatusUpdate is one provider delivery callback.
type StatusUpdate struct {
	ProviderMessageID string
	ProviderStatus    string
	ErrorCode         string
}

// StatusResult reports the effect of a callback.
type StatusResult struct {
	Outcome   string
	Status    string
	JobStatus string
}

// DeliveryStatusService applies provider callbacks so that statuses only move
// forward.
type DeliveryStatusService struct {
	store  storage.Store
	logger *zap.Logger
}

func NewDeliveryStatusService(store storage.Store, logger *zap.Logger) *DeliveryStatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryStatusService{store: store, logger: logger}
}

// Apply records the callback. Unknown statuses are not errors. An unknown
// provider id returns ErrUnknownMessage with the unknown_message outcome.
func (s *DeliveryStatusService) Apply(ctx context.Context, u StatusUpdate) (StatusResult, error) {
	nextStatus, nextJob, ok := MapProviderStatus(u.ProviderStatus)
	if !ok {
		s.logger.Warn("unknown delivery status",
			zap.String("provider_message_id", u.ProviderMessageID),
			zap.String("status", u.ProviderStatus))
		return StatusResult{Outcome: StatusOutcomeUnknownStatus}, nil
	}

	for attempt := 0; attempt < maxStatusAdvanceAttempts; attempt++ {
		msg, err := s.store.GetOutboundMessageByProviderID(ctx, u.ProviderMessageID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("delivery status for unknown message",
				zap.String("provider_message_id", u.ProviderMessageID),
				zap.String("status", u.ProviderStatus))
			return StatusResult{Outcome: StatusOutcomeUnknownMessage}, ErrUnknownMessage
		}
		if err != nil {
			return StatusResult{}, err
		}

		toStatus := forward(messageStatusRank, terminalRank, msg.Status, nextStatus)
		toJob := forward(jobStatusRank, jobStatusRank[models.JobStatusSent], msg.JobStatus, nextJob)
		if toStatus == msg.Status && toJob == msg.JobStatus {
			return StatusResult{Outcome: StatusOutcomeIgnored, Status: msg.Status, JobStatus: msg.JobStatus}, nil
		}

		advanced, err := s.store.AdvanceOutboundStatus(ctx, msg.ID, storage.StatusTransition{
			FromStatus:    msg.Status,
			FromJobStatus: msg.JobStatus,
			ToStatus:      toStatus,
			ToJobStatus:   toJob,
		})
		if err != nil {
			return StatusResult{}, err
		}
		if advanced {
			s.logger.Info("delivery status updated",
				zap.String("provider_message_id", u.ProviderMessageID),
				zap.String("from", msg.Status),
				zap.String("to", toStatus),
				zap.String("job_status", toJob),
				zap.String("error_code", u.ErrorCode))
			return StatusResult{Outcome: StatusOutcomeUpdated, Status: toStatus, JobStatus: toJob}, nil
		}
		// lost a race with another callback; re-read and re-rank
	}

	return StatusResult{Outcome: StatusOutcomeIgnored}, nil
}
