package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the caller-recoverable categories exposed by the service.
type Kind string

const (
	KindUnknown           Kind = ""
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindSessionEnded      Kind = "session_ended"
	KindNotStarted        Kind = "not_started"
	KindNotJoined         Kind = "not_joined"
	KindAlreadySubmitted  Kind = "already_submitted"
	KindNotFinished       Kind = "not_finished"
	KindInvalid           Kind = "invalid"
	KindUnavailable       Kind = "unavailable"
)

// Error carries a Kind alongside a message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by identity and any *Error with the same kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	// ErrSessionNotFound is returned when no session matches the given ID or code.
	ErrSessionNotFound = newError(KindNotFound, "quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "quiz not found")
	// ErrParticipantNotFound is returned when a lookup targets a student that never joined.
	ErrParticipantNotFound = newError(KindNotFound, "participant not found in session")
	// ErrForbidden is returned when a non-owner attempts an owner-only action.
	ErrForbidden = newError(KindForbidden, "requester is not allowed to perform this action")
	// ErrInvalidTransition is returned when a lifecycle change is not legal from the current status.
	ErrInvalidTransition = newError(KindInvalidTransition, "invalid session state transition")
	// ErrSessionEnded is returned when joining or submitting after the session ended.
	ErrSessionEnded = newError(KindSessionEnded, "quiz session has ended")
	// ErrSessionNotStarted is returned when submitting while the session is still in the lobby.
	ErrSessionNotStarted = newError(KindNotStarted, "quiz session has not started")
	// ErrNotJoined is returned when a student submits without joining first.
	ErrNotJoined = newError(KindNotJoined, "student has not joined this session")
	// ErrAlreadySubmitted is returned for any submission after the first accepted one.
	ErrAlreadySubmitted = newError(KindAlreadySubmitted, "answers already submitted")
	// ErrNotFinished is returned when a review is requested before scoring.
	ErrNotFinished = newError(KindNotFinished, "participant has not submitted yet")
	// ErrCodeTaken is reported by stores when a join code is held by an open session.
	ErrCodeTaken = newError(KindInvalid, "join code already in use")
	// ErrCodeSpaceExhausted is returned when no free join code was found within the attempt budget.
	ErrCodeSpaceExhausted = newError(KindUnavailable, "could not allocate a unique join code")
)

// Invalid builds a validation error of KindInvalid.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps an infrastructure failure so callers can retry with backoff.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindUnavailable, Msg: op, Err: err}
}

// KindOf reports the Kind of err, or KindUnknown if it carries none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
