package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the closed set of failure classifications used across the core.
// Every operation documents which kinds it may produce; callers branch on
// KindOf rather than string matching.
type Kind int

const (
	None Kind = iota
	Overloaded
	Timeout
	Unavailable
	Protocol
	StoreFailed
	Cancelled
)

var kindNames = map[Kind]string{
	None:        "none",
	Overloaded:  "overloaded",
	Timeout:     "timeout",
	Unavailable: "unavailable",
	Protocol:    "protocol",
	StoreFailed: "store_failed",
	Cancelled:   "cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error carries a kind plus the stage that produced it.
type Error struct {
	Kind  Kind
	Stage string // particle, wave, embedding, enqueue, store, ...
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind with a formatted message.
func New(kind Kind, stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind and stage to an underlying error.
func Wrap(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf classifies an error. Context cancellation and deadline errors map
// to Cancelled and Timeout even when they arrive unwrapped from net/http.
func KindOf(err error) Kind {
	if err == nil {
		return None
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return Unavailable
}

// Is lets errors.Is match against a bare *Error with the same kind.
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Kind == e.Kind
	}
	return false
}
