// Package failure defines the error kinds surfaced by recipe loading,
// execution and profiling. Every error carries a kind that callers match
// with errors.Is; the runner façade passes them through untranslated.
package failure

import (
	"errors"
	"fmt"
)

var (
	ErrRecipe          = errors.New("recipe error")
	ErrHardwareContext = errors.New("hardware context error")
	ErrValidation      = errors.New("validation error")
	ErrProfile         = errors.New("profile error")
	ErrRepo            = errors.New("artifact repository error")
	ErrJSON            = errors.New("description error")
)

// Error is a kinded failure with an optional underlying cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports a match against the error kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func newf(kind error, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func Recipef(format string, args ...any) error {
	return newf(ErrRecipe, nil, format, args...)
}

func Profilef(format string, args ...any) error {
	return newf(ErrProfile, nil, format, args...)
}

func Repof(format string, args ...any) error {
	return newf(ErrRepo, nil, format, args...)
}

func JSONf(format string, args ...any) error {
	return newf(ErrJSON, nil, format, args...)
}

// Wrap attaches a kind and message to a cause. A nil cause yields nil.
func Wrap(kind error, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return newf(kind, cause, format, args...)
}

// ValidationError reports the first difference between a buffer and its
// reference data.
type ValidationError struct {
	Binding string
	Offset  int
	Got     byte
	Want    byte

	// SizeMismatch is set when the compared ranges differ in length; Offset
	// is then the length of the shorter range.
	SizeMismatch bool
	GotSize      int
	WantSize     int
}

func (e *ValidationError) Error() string {
	if e.SizeMismatch {
		return fmt.Sprintf("validation error: binding %q: size mismatch: got %d bytes, want %d bytes",
			e.Binding, e.GotSize, e.WantSize)
	}
	return fmt.Sprintf("validation error: binding %q: mismatch at byte %d: got 0x%02x, want 0x%02x",
		e.Binding, e.Offset, e.Got, e.Want)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
