package assetloader

import (
	"errors"
	"fmt"
	"strings"

	"ingest/internal/capability"
)

// ErrorKind classifies session failures.
type ErrorKind int

const (
	// KindInternal covers unexpected failures inside a concrete loader.
	KindInternal ErrorKind = iota
	// KindInvalidState is an ordering or multiplicity violation.
	KindInvalidState
	// KindUnsupportedOutputType means negotiation could not satisfy the consumer.
	KindUnsupportedOutputType
	// KindSourceRead means the underlying asset could not be read.
	KindSourceRead
)

var (
	ErrInternal              = errors.New("internal error")
	ErrInvalidState          = errors.New("invalid state")
	ErrUnsupportedOutputType = errors.New("unsupported output type")
	ErrSourceRead            = errors.New("source read error")

	// ErrReleased is returned to drivers and consumers once the session has
	// been released or has failed. It is never reported to the Listener.
	ErrReleased = errors.New("asset loader released")
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidState:
		return "invalid_state"
	case KindUnsupportedOutputType:
		return "unsupported_output_type"
	case KindSourceRead:
		return "source_read"
	default:
		return "internal"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidState:
		return ErrInvalidState
	case KindUnsupportedOutputType:
		return ErrUnsupportedOutputType
	case KindSourceRead:
		return ErrSourceRead
	default:
		return ErrInternal
	}
}

// Error is the single failure delivered to Listener.OnError.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Wrap builds a classified error. op names the protocol step, e.g. "track".
func Wrap(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: strings.TrimSpace(op), Message: strings.TrimSpace(message), Err: err}
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	parts = append(parts, e.Kind.sentinel().Error())
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// ErrorKind returns the string classification of the error.
func (e *Error) ErrorKind() string {
	return e.Kind.String()
}

// Classify converts any error into an *Error. Errors that already carry a
// kind keep it; capability and source errors are mapped; everything else is
// internal.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	switch {
	case errors.Is(err, capability.ErrUnsupported):
		return Wrap(KindUnsupportedOutputType, op, "", err)
	case errors.Is(err, capability.ErrEmptySet):
		return Wrap(KindInvalidState, op, "", err)
	case errors.Is(err, ErrSourceRead):
		return Wrap(KindSourceRead, op, "", err)
	case errors.Is(err, ErrInvalidState):
		return Wrap(KindInvalidState, op, "", err)
	default:
		return Wrap(KindInternal, op, "", err)
	}
}

func violation(op, format string, args ...any) *Error {
	return Wrap(KindInvalidState, op, fmt.Sprintf(format, args...), nil)
}
