package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound    = &NotFoundError{Resource: "room"}
	ErrBookingNotFound = &NotFoundError{Resource: "booking"}
	ErrPaymentNotFound = &NotFoundError{Resource: "payment"}
	ErrUserNotFound    = &NotFoundError{Resource: "user"}

	// ErrOwnership means the caller does not own the payment or booking
	ErrOwnership = errors.New("resource belongs to another user")

	// ErrDuplicateKey is returned by stores on a payment reference collision.
	// The reconciler recovers from it; it never reaches a client.
	ErrDuplicateKey = errors.New("duplicate payment reference")

	// ErrRoomUnavailable is returned by stores that reject an overlapping booking
	ErrRoomUnavailable = errors.New("room is already booked for these dates")

	ErrInvalidTransition  = errors.New("invalid booking status transition")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmailTaken         = errors.New("email already registered")
	ErrRoomNumberTaken    = errors.New("room number already exists")
)

// ValidationError is malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError is an absent room, booking, user or payment session.
// A NotFoundError matches any sentinel of the same Resource with errors.Is.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	return ok && t.ID == "" && t.Resource == e.Resource
}

// NewNotFound creates a NotFoundError for id
func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// PaymentIncompleteError means the provider has not reported the session as paid yet.
// Callers may retry once payment completes.
type PaymentIncompleteError struct {
	Status string
}

func (e *PaymentIncompleteError) Error() string {
	return fmt.Sprintf("payment not completed (status: %s)", e.Status)
}

// ConflictError means the room is taken for the requested dates. When
// RefundRequired is set the customer has already been charged.
type ConflictError struct {
	PaymentReference string
	RefundRequired   bool
}

func (e *ConflictError) Error() string {
	if e.RefundRequired {
		return fmt.Sprintf("room no longer available; payment %s requires a refund", e.PaymentReference)
	}
	return "room is not available for the selected dates"
}

func (e *ConflictError) Unwrap() error { return ErrRoomUnavailable }

// ExternalServiceError wraps a failure of the payment provider or another dependency
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// NewExternalServiceError wraps err
func NewExternalServiceError(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflictError(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsPaymentIncomplete(err error) bool {
	var p *PaymentIncompleteError
	return errors.As(err, &p)
}

func IsExternalServiceError(err error) bool {
	var e *ExternalServiceError
	return errors.As(err, &e)
}
