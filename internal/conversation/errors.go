package conversation

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidState             ErrorCode = "INVALID_STATE"
	ErrorIllegalTransitionAttempt ErrorCode = "ILLEGAL_TRANSITION_ATTEMPT"
	ErrorEngineRouteMismatch      ErrorCode = "ENGINE_ROUTE_MISMATCH"
	ErrorMissingUserState         ErrorCode = "MISSING_USER_STATE"
	ErrorUnknownRoute             ErrorCode = "UNKNOWN_ROUTE"
)

// RouterError is an invariant violation. It signals a defect or corrupt state
// and must propagate to the caller.
type RouterError struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *RouterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("router: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("router: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *RouterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *RouterError {
	return &RouterError{Code: code, Reason: reason, Err: err}
}

// ErrorCodeOf returns the code of the first RouterError in err's chain.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	var re *RouterError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}
