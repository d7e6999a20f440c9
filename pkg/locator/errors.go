package locator

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories the engine reports.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindOriginNotFound     Kind = "origin_not_found"
	KindLocationResolution Kind = "location_resolution"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindTransientStore     Kind = "transient_store"
	KindMetering           Kind = "metering"
)

// Error carries a Kind plus a client-safe message. Err, when set, is the
// underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the client-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func validationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func resolutionError(msg string) error {
	return &Error{Kind: KindLocationResolution, Message: msg}
}

func originNotFound(zip string) error {
	return &Error{Kind: KindOriginNotFound, Message: fmt.Sprintf("unknown location %s", zip)}
}

func notFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// storeError wraps a driver error. Cancellation keeps its context error so
// callers can tell a disconnect from an outage.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	msg := "store unavailable"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "store timeout"
	}
	return &Error{Kind: KindTransientStore, Message: msg, Err: fmt.Errorf("%s: %w", op, err)}
}

// Sentinel store results shared by every Session implementation.
var (
	ErrZipNotFound      = errors.New("zip not found")
	ErrLocationNotFound = errors.New("saved location not found")
	ErrProviderNotFound = errors.New("provider not found")
)
