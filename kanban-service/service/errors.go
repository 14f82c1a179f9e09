package service

import (
	"fmt"
	"time"

	"github.com/chepyr/go-kanban-board/shared/models"
	"github.com/google/uuid"
)

// InvalidStatusError is returned when a status string is not one of the three
// canonical values.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q, must be one of %v", e.Value, models.AllStatuses())
}

// InvalidPriorityError is returned when a priority string is not one of the
// four canonical values.
type InvalidPriorityError struct {
	Value string
}

func (e *InvalidPriorityError) Error() string {
	return fmt.Sprintf("invalid priority %q, must be one of %v", e.Value, models.AllPriorities())
}

// PastDueDateError is returned when a due date is earlier than today.
type PastDueDateError struct {
	DueDate time.Time
	Today   time.Time
}

func (e *PastDueDateError) Error() string {
	return fmt.Sprintf("due date %s cannot be in the past, current date: %s",
		e.DueDate.Format("2006-01-02"), e.Today.Format("2006-01-02"))
}

// TaskNotFoundError is returned when an id resolves to no row.
type TaskNotFoundError struct {
	ID uuid.UUID
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task with id %s not found", e.ID)
}

// OptimisticConcurrencyError is returned when the caller's expected
// last_modified does not match the stored one.
type OptimisticConcurrencyError struct {
	Expected time.Time
	Actual   time.Time
}

func (e *OptimisticConcurrencyError) Error() string {
	return fmt.Sprintf("task was modified by another operation: expected last_modified %s, actual %s",
		e.Expected.UTC().Format(time.RFC3339Nano), e.Actual.UTC().Format(time.RFC3339Nano))
}

// InvalidStatusTransitionError is returned when a status change is not in the
// allowed transition set.
type InvalidStatusTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q, allowed transitions from %q are: %v",
		e.From, e.To, e.From, allowedTransitions[e.From])
}
