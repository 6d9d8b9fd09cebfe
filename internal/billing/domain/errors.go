package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig   = errors.New("invalid_config")
	ErrInvalidStrategy = errors.New("invalid_strategy")
	ErrPassInProgress  = errors.New("billing_pass_in_progress")
	ErrLockHeld        = errors.New("billing_lock_held")
)

// BillingError wraps a failure of a whole pass, as opposed to a single
// invoice. Scheduled firings re-fire on it.
type BillingError struct {
	Op  string
	Err error
}

func (e *BillingError) Error() string {
	return fmt.Sprintf("billing pass: %s: %v", e.Op, e.Err)
}

func (e *BillingError) Unwrap() error {
	return e.Err
}

func (e *BillingError) RefireEligible() bool { return true }

func IsBillingError(err error) bool {
	var billingErr *BillingError
	return errors.As(err, &billingErr)
}
