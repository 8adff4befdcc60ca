package parking

import (
	"errors"

	"zlot-parking/internal/store"
)

// Kind classifies a failure for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindInvalidState
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a domain failure with a client-facing message.
type Error struct {
	Kind    Kind
	Message string
	// ActiveSessionID is set on session conflicts.
	ActiveSessionID string
	Err             error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of err. Lock races from the store are conflicts;
// anything unclassified is internal.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, store.ErrConflict) {
		return KindConflict
	}
	return KindInternal
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	if errors.Is(err, store.ErrConflict) {
		return "Request conflicted with a concurrent update. Retry."
	}
	return err.Error()
}

// upstream reports a failed write. Lock races keep their conflict kind.
func upstream(msg string, err error) error {
	if errors.Is(err, store.ErrConflict) {
		return err
	}
	return wrapError(KindUpstream, msg, err)
}

// internal wraps an unexpected store failure.
func internal(msg string, err error) error {
	if errors.Is(err, store.ErrConflict) {
		return err
	}
	return wrapError(KindInternal, msg, err)
}
