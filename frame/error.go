package frame

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store errors.
var (
	ErrNoHandler = errors.New("no handler registered")
	ErrBadEffect = errors.New("malformed effect value")
)

// Error provides context about a failed event or subscription. It wraps the
// underlying error with the path of the interceptor or handler that failed,
// the event being processed, and when the failure happened.
type Error struct {
	Timestamp time.Time
	InputData Event
	Err       error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	location := strings.Join(e.Path, " -> ")
	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the failure was caused by a deadline.
func (e *Error) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled reports whether the failure was caused by cancellation.
func (e *Error) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// PanicError carries the value a handler or interceptor panicked with.
type PanicError struct {
	Value any
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

func newError(err error, event Event, path []Name, start, now time.Time) *Error {
	var frameErr *Error
	if errors.As(err, &frameErr) {
		frameErr.Path = append(append([]Name{}, path...), frameErr.Path...)
		return frameErr
	}
	return &Error{
		Timestamp: now,
		InputData: event,
		Err:       err,
		Path:      path,
		Duration:  now.Sub(start),
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// recoverFromPanic turns a panic in the current goroutine into a *PanicError
// stored in err.
func recoverFromPanic(err *error) {
	if r := recover(); r != nil {
		*err = &PanicError{Value: r}
	}
}
