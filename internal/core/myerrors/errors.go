package myerrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrLimitExceeded      = errors.New("daily limit exceeded")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTimeout            = errors.New("timeout")
	ErrInternal           = errors.New("internal error")
	ErrDuplicateReference = errors.New("duplicate ledger reference")
)

// ValidationError reports a malformed field in an inbound request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
