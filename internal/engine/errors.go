package engine

import (
	"fmt"

	"certline/internal/domain"
)

// InvalidTransitionError reports an operation whose required source state does
// not match the application's current status. No mutation occurred.
type InvalidTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// ValidationError reports a payload precondition failure. No mutation occurred.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AllocationError reports that a unique certificate number could not be
// found within the configured attempt budget.
type AllocationError struct {
	Attempts int
}

func (e AllocationError) Error() string {
	return fmt.Sprintf("certificate number allocation failed after %d attempts", e.Attempts)
}
