package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/chepyr/go-kanban-board/shared/models"
)

// Pure validation rules shared by the create, update and import paths.

func ValidateTitle(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("title cannot be empty")
	}
	return trimmed, nil
}

func ValidateStatus(value string) (models.Status, error) {
	trimmed := strings.TrimSpace(value)
	for _, s := range models.AllStatuses() {
		if trimmed == string(s) {
			return s, nil
		}
	}
	return "", &InvalidStatusError{Value: value}
}

// ValidatePriority treats empty and whitespace-only input as "no priority".
func ValidatePriority(value string) (*models.Priority, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	for _, p := range models.AllPriorities() {
		if trimmed == string(p) {
			return &p, nil
		}
	}
	return nil, &InvalidPriorityError{Value: value}
}

// ValidateDueDate rejects dates earlier than today. Both sides are compared as
// UTC calendar dates.
func ValidateDueDate(value, today time.Time) error {
	due := truncateToDate(value)
	cur := truncateToDate(today)
	if due.Before(cur) {
		return &PastDueDateError{DueDate: due, Today: cur}
	}
	return nil
}

func ValidateEstimatedTime(value float64) error {
	if value < 0 {
		return fmt.Errorf("estimated time must be non-negative, got: %v", value)
	}
	return nil
}

// CleanLabels trims every entry, drops the ones that end up empty, and
// normalizes an empty result to nil so "no labels" has a single representation
// in storage.
func CleanLabels(labels []string) []string {
	var cleaned []string
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// cleanOptionalString trims and converts empty strings to nil, the
// normalization applied to assignee and description.
func cleanOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func truncateToDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
