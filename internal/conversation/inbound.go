package conversation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/services"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

// InboundOutcome describes what happened to an inbound message.
type InboundOutcome struct {
	Decision RoutingDecision
	Reply    *string
	// Duplicate is true when the message id was already claimed.
	Duplicate bool
	// Skipped names why no engine ran, if one did not.
	Skipped string
}

// InboundService routes, dispatches and replies to one inbound message.
type InboundService struct {
	store      storage.Store
	router     *Router
	dispatcher *Dispatcher
	delivery   *services.Delivery
	logger     *zap.Logger
}

func NewInboundService(store storage.Store, router *Router, dispatcher *Dispatcher, delivery *services.Delivery, logger *zap.Logger) *InboundService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboundService{
		store:      store,
		router:     router,
		dispatcher: dispatcher,
		delivery:   delivery,
		logger:     logger,
	}
}

// Handle processes msg at most once per message id. An engine failure
// releases the claim so a provider retry runs again; a send failure keeps it,
// and the retry re-sends the recorded reply under the same key.
func (s *InboundService) Handle(ctx context.Context, msg InboundMessage) (InboundOutcome, error) {
	decision, err := s.router.RouteMessage(ctx, msg)
	if err != nil {
		return InboundOutcome{}, err
	}
	out := InboundOutcome{Decision: decision}

	if decision.SessionID == "" {
		return s.dispatchAndReply(ctx, out, msg, func() {})
	}

	session, err := s.store.GetSession(ctx, decision.SessionID)
	if err != nil {
		return out, fmt.Errorf("inbound: load session: %w", err)
	}
	previous := session.LastInboundMessageSID

	claimed, err := s.store.ClaimInboundMessage(ctx, session.ID, msg.MessageID)
	if err != nil {
		return out, err
	}
	if !claimed {
		out.Duplicate = true
		return s.redriveReply(ctx, out, msg)
	}

	if session.IsPaused() {
		out.Skipped = "session_paused"
		s.logger.Info("inbound ignored: session paused",
			zap.String("message_id", msg.MessageID),
			zap.String("session_id", session.ID))
		return out, nil
	}

	release := func() {
		if err := s.store.ReleaseInboundMessage(ctx, session.ID, msg.MessageID, previous); err != nil {
			s.logger.Error("failed to release inbound claim",
				zap.String("message_id", msg.MessageID),
				zap.String("session_id", session.ID),
				zap.Error(err))
		}
	}
	return s.dispatchAndReply(ctx, out, msg, release)
}

func (s *InboundService) dispatchAndReply(ctx context.Context, out InboundOutcome, msg InboundMessage, release func()) (InboundOutcome, error) {
	result, err := s.dispatcher.Dispatch(ctx, out.Decision, msg)
	if err != nil {
		release()
		return out, err
	}
	out.Reply = result.Reply
	if result.Reply == nil {
		return out, nil
	}

	_, err = s.delivery.DeliverOnce(ctx, services.DeliveryRequest{
		Key:    ReplyKey(msg.MessageID),
		UserID: out.Decision.UserID,
		To:     msg.From,
		Body:   *result.Reply,
	})
	if err != nil {
		return out, fmt.Errorf("inbound: send reply: %w", err)
	}
	return out, nil
}

// redriveReply finishes a replayed message whose reply was recorded but not
// accepted by the carrier.
func (s *InboundService) redriveReply(ctx context.Context, out InboundOutcome, msg InboundMessage) (InboundOutcome, error) {
	key := ReplyKey(msg.MessageID)
	rec, err := s.delivery.Recorded(ctx, key)
	if err != nil {
		return out, err
	}
	if rec == nil || rec.Delivered() {
		s.logger.Info("duplicate inbound message ignored", zap.String("message_id", msg.MessageID))
		return out, nil
	}

	s.logger.Info("re-sending undelivered reply", zap.String("message_id", msg.MessageID))
	if _, err := s.delivery.Redeliver(ctx, key); err != nil {
		return out, fmt.Errorf("inbound: resend reply: %w", err)
	}
	body := rec.Body
	out.Reply = &body
	return out, nil
}
