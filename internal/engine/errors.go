package engine

import (
	"errors"
	"fmt"
)

// Session fault sentinels.
var (
	// ErrNoQuestionsAvailable means the question loader returned an empty
	// sequence. The session never leaves Initializing.
	ErrNoQuestionsAvailable = errors.New("no questions available for this selection")
	// ErrConfigurationFault means no duration rule matched even the
	// exam-type-only default. Fatal to starting a timed session.
	ErrConfigurationFault = errors.New("no duration rule matches this selection")
	// ErrConflictingSession means a timer snapshot for the session key
	// already exists with a different originating context.
	ErrConflictingSession = errors.New("session is already live in another context")
)

// TransitionReason identifies why an operation was rejected.
type TransitionReason string

const (
	ReasonTimeRemaining    TransitionReason = "TIMED_TIME_REMAINING"
	ReasonSessionCompleted TransitionReason = "SESSION_COMPLETED"
	ReasonSessionNotActive TransitionReason = "SESSION_NOT_ACTIVE"
	ReasonUnknownQuestion  TransitionReason = "UNKNOWN_QUESTION"
	ReasonIndexOutOfRange  TransitionReason = "INDEX_OUT_OF_RANGE"
)

// InvalidTransitionError rejects an operation that is not legal in the
// session's current state. Rejections are explicit so callers can tell
// "ignored because too late" apart from other failures.
type InvalidTransitionError struct {
	Op     string
	Reason TransitionReason
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s rejected (%s)", e.Op, e.Reason)
}

// AsInvalidTransition unwraps err into an InvalidTransitionError if it is one.
func AsInvalidTransition(err error) (*InvalidTransitionError, bool) {
	var ite *InvalidTransitionError
	if errors.As(err, &ite) {
		return ite, true
	}
	return nil, false
}
