package lifecycle

import (
	"errors"
	"fmt"

	"github.com/kendall-kelly/jersey-repair-api/models"
)

var (
	// ErrInvalidTransition means the action is not allowed from the order's current state
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrMissingDeliveryMethod guards against routing an order whose inbound method was never chosen
	ErrMissingDeliveryMethod = errors.New("missing delivery method")
	// ErrNotPaid is an invalid transition caused by routing an unpaid order
	ErrNotPaid = fmt.Errorf("%w: order is not paid", ErrInvalidTransition)
)

// TransitionError describes a rejected action
type TransitionError struct {
	Action ActionKind
	Status models.OrderStatus
	Reason string
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from %s: %s", e.Action, e.Status, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func invalid(action ActionKind, status models.OrderStatus, format string, args ...any) error {
	return &TransitionError{
		Action: action,
		Status: status,
		Reason: fmt.Sprintf(format, args...),
		Err:    ErrInvalidTransition,
	}
}
