package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ScheduleRequest asks the delayed-job service to POST Payload to Destination
// after Delay. Jobs with the same DeduplicationID are published once.
type ScheduleRequest struct {
	Destination     string
	Payload         any
	Delay           time.Duration
	DeduplicationID string
}

// Scheduler publishes delayed HTTP callbacks.
type Scheduler interface {
	Schedule(ctx context.Context, req ScheduleRequest) (string, error)
}

// ErrSchedulerUnavailable is returned for failures worth retrying.
var ErrSchedulerUnavailable = errors.New("scheduler unavailable")

// QStashScheduler publishes jobs through the QStash v2 publish API.
type QStashScheduler struct {
	baseURL string
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewQStashScheduler creates a scheduler client. baseURL is the API root,
// e.g. https://qstash.upstash.io.
func NewQStashScheduler(baseURL, token string, timeout time.Duration, logger *zap.Logger) (*QStashScheduler, error) {
	if baseURL == "" || token == "" {
		return nil, fmt.Errorf("scheduler URL and token are required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QStashScheduler{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		logger:  logger,
	}, nil
}

type publishResponse struct {
	MessageID string `json:"messageId"`
}

// Schedule publishes the job and returns the scheduler's message id.
func (q *QStashScheduler) Schedule(ctx context.Context, req ScheduleRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Destination == "" {
		return "", fmt.Errorf("schedule: destination is required")
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return "", fmt.Errorf("schedule: encode payload: %w", err)
	}

	a := fiber.Post(q.baseURL + "/v2/publish/" + req.Destination)
	if err := a.Parse(); err != nil {
		return "", fmt.Errorf("schedule: %w", err)
	}
	// the destination URL is embedded in the path and its "//" must survive.
	// The host client resets the URI flag from its own setting on every send.
	a.HostClient.DisablePathNormalizing = true
	a.Request().URI().DisablePathNormalizing = true
	a.Set(fiber.HeaderAuthorization, "Bearer "+q.token)
	a.ContentType(fiber.MIMEApplicationJSON)
	if delay := delaySeconds(req.Delay); delay > 0 {
		a.Set("Upstash-Delay", strconv.Itoa(delay)+"s")
	}
	if req.DeduplicationID != "" {
		a.Set("Upstash-Deduplication-Id", req.DeduplicationID)
	}
	a.Body(body)
	a.Timeout(q.timeout)

	code, respBody, errs := a.Bytes()
	if len(errs) > 0 {
		q.logger.Warn("schedule request failed", zap.String("destination", req.Destination), zap.Errors("errors", errs))
		return "", fmt.Errorf("%w: %v", ErrSchedulerUnavailable, errors.Join(errs...))
	}
	if code == fiber.StatusTooManyRequests || code >= fiber.StatusInternalServerError {
		return "", fmt.Errorf("%w: status %d", ErrSchedulerUnavailable, code)
	}
	if code < 200 || code >= 300 {
		return "", fmt.Errorf("schedule rejected: status %d: %s", code, strings.TrimSpace(string(respBody)))
	}

	var out publishResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("schedule: decode response: %w", err)
	}

	q.logger.Debug("job scheduled",
		zap.String("destination", req.Destination),
		zap.String("job_id", out.MessageID),
		zap.String("dedup_id", req.DeduplicationID),
		zap.Duration("delay", req.Delay))
	return out.MessageID, nil
}

// delaySeconds rounds sub-second remainders up so a job never fires early.
func delaySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
