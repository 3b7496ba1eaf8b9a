package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidationFailed    Kind = "ValidationFailed"
	KindConflict            Kind = "Conflict"
	KindNotFound            Kind = "NotFound"
	KindInvalidCredentials  Kind = "InvalidCredentials"
	KindAccountNotActivated Kind = "AccountNotActivated"
	KindNoCodeIssued        Kind = "NoCodeIssued"
	KindInvalidCode         Kind = "InvalidCode"
	KindDeliveryFailed      Kind = "DeliveryFailed"
	KindUnauthorized        Kind = "Unauthorized"
	KindForbidden           Kind = "Forbidden"
	KindInternal            Kind = "Internal"
)

// Error is the only error type the service layer returns to transports.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrValidation          = &Error{Kind: KindValidationFailed, Message: "validation failed"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountNotActivated = &Error{Kind: KindAccountNotActivated, Message: "account is not activated"}
	ErrNoCodeIssued        = &Error{Kind: KindNoCodeIssued, Message: "no recovery code issued"}
	ErrInvalidCode         = &Error{Kind: KindInvalidCode, Message: "invalid recovery code"}
	ErrDeliveryFailed      = &Error{Kind: KindDeliveryFailed, Message: "email delivery failed"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInternal            = &Error{Kind: KindInternal, Message: "internal error"}
)

// KindOf returns KindInternal for errors that did not come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
