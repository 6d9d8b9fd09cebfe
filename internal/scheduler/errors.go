package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidTrigger   = errors.New("invalid_trigger")
	ErrSchedulerStopped = errors.New("scheduler_stopped")
)

// SchedulingError reports a trigger that could not be registered or replaced.
type SchedulingError struct {
	JobID     string
	TriggerID string
	Cron      string
	Err       error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule trigger %s for job %s with %q: %v", e.TriggerID, e.JobID, e.Cron, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

// RefireEligible is implemented by job errors that ask for an immediate
// re-fire instead of waiting for the next tick.
type RefireEligible interface {
	RefireEligible() bool
}

type refireError struct {
	err error
}

// Refire marks err as eligible for immediate re-fire.
func Refire(err error) error {
	if err == nil {
		return nil
	}
	return &refireError{err: err}
}

func (e *refireError) Error() string        { return e.err.Error() }
func (e *refireError) Unwrap() error        { return e.err }
func (e *refireError) RefireEligible() bool { return true }

func IsRefireEligible(err error) bool {
	if err == nil {
		return false
	}
	var eligible RefireEligible
	return errors.As(err, &eligible) && eligible.RefireEligible()
}
