package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCurrencyNotFound     = errors.New("currency not found")
	ErrMethodNotFound       = errors.New("method not found")
	ErrRequestNotFound      = errors.New("request not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrRequisiteNotFound    = errors.New("requisite not found")
	ErrOrderRequestNotFound = errors.New("order request not found")

	ErrRateUnavailable        = errors.New("rate unavailable")
	ErrZeroRate               = errors.New("rate is zero")
	ErrPermissionDenied       = errors.New("wallet is not permitted to act on this side")
	ErrOrderRequestPending    = errors.New("order request already pending for this order")
	ErrRequisiteCapacity      = errors.New("requisite lacks capacity")
	ErrConfirmationFields     = errors.New("confirmation fields do not match input schema")
	ErrFirstLineInvalid       = errors.New("first line does not belong to this request type")
	ErrRequestTypeInvalid     = errors.New("unknown request type")
	ErrAmendmentNotApprovable = errors.New("order request is not pending")
)

// StateError reports a transition attempted from the wrong state.
type StateError struct {
	Entity   string
	ID       string
	Expected string
	Actual   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s state wrong, need %s, have %s", e.Entity, e.ID, e.Expected, e.Actual)
}

// NewStateError builds a StateError for an entity.
func NewStateError(entity, id, expected, actual string) *StateError {
	return &StateError{Entity: entity, ID: id, Expected: expected, Actual: actual}
}

// IsStateError reports whether err is a wrong-state violation.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
