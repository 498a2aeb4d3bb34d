package flow

import (
	"errors"
	"fmt"

	"github.com/kendall-kelly/jersey-repair-api/lifecycle"
)

var (
	// ErrValidation is the class of every ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrOrderLocked means the order is paid or cancelled and the customer can no longer edit it
	ErrOrderLocked = errors.New("order can no longer be changed")
	// ErrPaymentConflict is a second payment confirmation carrying a different reference
	ErrPaymentConflict = fmt.Errorf("%w: order was already paid with a different reference", lifecycle.ErrInvalidTransition)
)

// ValidationError reports a bad customer input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalidInput(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
