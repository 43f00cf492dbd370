package service

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindAuth       ErrorKind = "auth"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindGateway    ErrorKind = "gateway"
	KindStore      ErrorKind = "store"
)

// PaymentError carries the failure kind so handlers can pick a status without
// string matching. Message is safe to show to clients; Err is the internal cause.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *PaymentError) Unwrap() error { return e.Err }

func (e *PaymentError) PublicMessage() string { return e.Message }

func (e *PaymentError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindConflict:
		return fiber.StatusBadRequest
	case KindAuth:
		return fiber.StatusUnauthorized
	case KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func NewValidationError(msg string) *PaymentError {
	return &PaymentError{Kind: KindValidation, Message: msg}
}

func NewAuthError(msg string, err error) *PaymentError {
	return &PaymentError{Kind: KindAuth, Message: msg, Err: err}
}

func NewNotFoundError(msg string) *PaymentError {
	return &PaymentError{Kind: KindNotFound, Message: msg}
}

func NewConflictError(msg string) *PaymentError {
	return &PaymentError{Kind: KindConflict, Message: msg}
}

func NewGatewayError(msg string, err error) *PaymentError {
	if msg == "" {
		msg = "payment gateway error"
	}
	return &PaymentError{Kind: KindGateway, Message: msg, Err: err}
}

func NewStoreError(msg string, err error) *PaymentError {
	return &PaymentError{Kind: KindStore, Message: msg, Err: err}
}

// IsKind reports whether err is a PaymentError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PaymentError
	return errors.As(err, &pe) && pe.Kind == kind
}
