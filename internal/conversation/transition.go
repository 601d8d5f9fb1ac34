package conversation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

// StateWriter is the only path by which engines change a session's state.
type StateWriter struct {
	store  storage.Store
	logger *zap.Logger
}

func NewStateWriter(store storage.Store, logger *zap.Logger) *StateWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateWriter{store: store, logger: logger}
}

// Transition moves session to next/token. The move must be legal from the
// current mode and the token must be valid for next. session is updated in place.
func (w *StateWriter) Transition(ctx context.Context, session *models.ConversationSession, next Mode, token string) error {
	from := State{Mode: Mode(session.Mode), Token: session.StateToken}
	if err := ValidateState(from); err != nil {
		return err
	}
	if !CanTransition(from.Mode, next) {
		return newError(ErrorIllegalTransitionAttempt,
			fmt.Sprintf("%s -> %s is not a legal transition", from.Mode, next), nil)
	}
	to := State{Mode: next, Token: token}
	if err := ValidateState(to); err != nil {
		return err
	}

	if err := w.store.UpdateSessionState(ctx, session.ID, string(next), token); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	session.Mode = string(next)
	session.StateToken = token

	w.logger.Info("session transition",
		zap.String("session_id", session.ID),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return nil
}
