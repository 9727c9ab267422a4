// Package apperr holds the error taxonomy shared by the checkout engine and its transports.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindInvalidState      Kind = "INVALID_STATE"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindPaymentDeclined   Kind = "PAYMENT_DECLINED"
	KindConflict          Kind = "CONFLICT"
	KindTimeout           Kind = "TIMEOUT"
	KindInternal          Kind = "INTERNAL"
)

// Error is the engine's typed failure. Retryable tells the caller that the same
// request may succeed when resubmitted and that the failed attempt left no state behind.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Details   map[string]any
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by kind, so errors.Is(err, apperr.ErrNotFound) works for any NotFound.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrPaymentDeclined   = &Error{Kind: KindPaymentDeclined}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrTimeout           = &Error{Kind: KindTimeout}
)

func retryableKind(k Kind) bool {
	switch k {
	case KindInsufficientStock, KindPaymentDeclined, KindConflict, KindTimeout:
		return true
	}
	return false
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: retryableKind(kind)}
}

func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Retryable: retryableKind(kind), Cause: err}
}

func NotFound(format string, args ...any) *Error     { return New(KindNotFound, format, args...) }
func Forbidden(format string, args ...any) *Error    { return New(KindForbidden, format, args...) }
func InvalidState(format string, args ...any) *Error { return New(KindInvalidState, format, args...) }
func Validation(format string, args ...any) *Error   { return New(KindValidation, format, args...) }
func Conflict(format string, args ...any) *Error     { return New(KindConflict, format, args...) }

// InsufficientStock reports the first item a reservation could not satisfy.
func InsufficientStock(itemID string, available, required int) *Error {
	e := New(KindInsufficientStock, "insufficient stock for %s: available %d, required %d", itemID, available, required)
	e.Details = map[string]any{"catalogItemId": itemID, "available": available, "required": required}
	return e
}

// WithDetail returns a copy of e carrying one more detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is an engine error flagged retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
