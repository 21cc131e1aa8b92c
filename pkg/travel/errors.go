package travel

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Field-level causes wrap ErrValidation.
var (
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateBooking     = errors.New("duplicate booking")
	ErrGatewayRejected      = errors.New("payment gateway rejected request")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrListingNotFound      = errors.New("listing not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrForbidden            = errors.New("forbidden")
	ErrPaymentFinalized     = errors.New("payment already finalized")
	ErrTxRefCollision       = errors.New("transaction reference collision")
	ErrBookingAlreadyPaid   = errors.New("booking already paid")
	ErrDuplicateTxRef       = errors.New("duplicate transaction reference")
	ErrDuplicateSlug        = errors.New("duplicate listing slug")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// Field-level validation causes.
var (
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidAmountCents = errors.New("invalid amount")
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrInvalidTxRef       = errors.New("invalid transaction reference")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrInvalidListingID   = errors.New("invalid listing id")
	ErrInvalidBookingID   = errors.New("invalid booking id")
	ErrInvalidStayDates   = errors.New("invalid stay dates")
	ErrInvalidRating      = errors.New("invalid rating")
	ErrInvalidStatus      = errors.New("invalid payment status")
	ErrInvalidMetadata    = errors.New("invalid metadata json")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// invalid joins a field-level cause with ErrValidation so callers can match either.
func invalid(cause error, detail string) error {
	return fmt.Errorf("%w: %w: %s", ErrValidation, cause, detail)
}
