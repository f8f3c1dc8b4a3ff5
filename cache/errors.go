package cache

import (
	"fmt"

	"github.com/go-stack/stack"
	"github.com/pkg/errors"
)

// Kind is the error taxonomy this package uses. It is not a set of Go
// error types (those would force callers to type-switch per error site);
// it is a closed classification every *Error carries, so a caller can
// branch on "was this an argument mistake, an invariant violation, a
// resource failure, corruption, or a multi-writer desync" without caring
// about message text.
type Kind int

const (
	KindArgument Kind = iota
	KindInvariant
	KindResource
	KindCorruption
	KindMultiWriterDesync
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindInvariant:
		return "invariant"
	case KindResource:
		return "resource"
	case KindCorruption:
		return "corruption"
	case KindMultiWriterDesync:
		return "multi-writer-desync"
	default:
		return "unknown"
	}
}

// Frame is one entry of the error stack every public verb's error
// carries, so a caller can read the full path an error traveled.
type Frame struct {
	Kind     Kind
	Message  string
	Location string // caller frame, captured via go-stack/stack
}

// Error is the error type every public cache verb returns on failure. It
// wraps github.com/pkg/errors for Cause()/Unwrap() chaining and appends a
// Frame describing where in this module the error originated.
type Error struct {
	frames []Frame
	cause  error
}

func (e *Error) Error() string {
	if len(e.frames) == 0 {
		return e.cause.Error()
	}
	top := e.frames[len(e.frames)-1]
	return fmt.Sprintf("%s: %s (%s)", top.Kind, top.Message, top.Location)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Stack returns the full error stack, outermost frame last.
func (e *Error) Stack() []Frame { return e.frames }

// Kind returns the outermost (most specific) frame's kind.
func (e *Error) Kind() Kind {
	if len(e.frames) == 0 {
		return KindResource
	}
	return e.frames[len(e.frames)-1].Kind
}

// newErr builds a fresh *Error, capturing the immediate caller's location
// with go-stack/stack.
func newErr(kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	loc := stack.Caller(1).String()
	return &Error{
		cause:  errors.New(msg),
		frames: []Frame{{Kind: kind, Message: msg, Location: loc}},
	}
}

// wrap appends a new frame to an existing error, preserving its cause, or
// starts a fresh *Error if err isn't already one.
func wrap(err error, kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	loc := stack.Caller(1).String()
	frame := Frame{Kind: kind, Message: msg, Location: loc}

	var existing *Error
	if errors.As(err, &existing) {
		frames := append(append([]Frame{}, existing.frames...), frame)
		return &Error{cause: existing.cause, frames: frames}
	}
	if err == nil {
		return &Error{cause: errors.New(msg), frames: []Frame{frame}}
	}
	return &Error{cause: errors.Wrap(err, msg), frames: []Frame{frame}}
}

func argErr(format string, args ...interface{}) *Error {
	return newErr(KindArgument, format, args...)
}

func invariantErr(format string, args ...interface{}) *Error {
	return newErr(KindInvariant, format, args...)
}

func resourceErr(err error, format string, args ...interface{}) *Error {
	return wrap(err, KindResource, format, args...)
}

func corruptionErr(format string, args ...interface{}) *Error {
	return newErr(KindCorruption, format, args...)
}

func desyncErr(format string, args ...interface{}) *Error {
	return newErr(KindMultiWriterDesync, format, args...)
}
