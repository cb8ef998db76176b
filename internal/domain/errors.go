package domain

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("validation failed")
var ErrStateConflict = errors.New("state conflict")

var ErrAccountNotFound = errors.New("account not found")
var ErrAccountAlreadyExists = errors.New("account already exists")
var ErrPaymentNotFound = errors.New("payment not found")
var ErrPaymentAlreadyExists = errors.New("payment already exists")

var ErrEmailAddressInUse = errors.New("email address already in use")

var ErrUnknownEventType = errors.New("unknown event type")
var ErrUnknownCommandType = errors.New("unknown command type")

// EmailAddressInUseError is returned when an account creation would break the
// unique email address constraint.
type EmailAddressInUseError struct {
	Email string
}

func (e *EmailAddressInUseError) Error() string {
	return fmt.Sprintf("email address %q already in use", e.Email)
}

func (e *EmailAddressInUseError) Is(target error) bool {
	return target == ErrEmailAddressInUse
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func stateConflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

// IsRejection reports whether err is a domain decision rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAccountAlreadyExists) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrPaymentAlreadyExists) ||
		errors.Is(err, ErrEmailAddressInUse) ||
		errors.Is(err, ErrUnknownCommandType)
}
