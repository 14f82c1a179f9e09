package models

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

func AllStatuses() []Status {
	return []Status{StatusToDo, StatusInProgress, StatusDone}
}

func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

// Task is the persisted kanban record. Optional fields are pointers; Labels is
// nil when the task has no labels (empty lists are never stored).
type Task struct {
	ID            uuid.UUID
	Title         string
	Assignee      *string
	DueDate       *time.Time // calendar date, midnight UTC
	Description   *string
	Priority      *Priority
	Labels        []string
	EstimatedTime *float64
	Status        Status
	CreatedAt     time.Time
	LastModified  time.Time
	DeletedAt     *time.Time
}

// TaskResponse is the serialized snapshot handed to callers. Labels is always
// present (empty slice when the task has none), dates are ISO strings.
type TaskResponse struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Assignee      *string  `json:"assignee"`
	DueDate       *string  `json:"due_date"`
	Description   *string  `json:"description"`
	Priority      *string  `json:"priority"`
	Labels        []string `json:"labels"`
	EstimatedTime *float64 `json:"estimated_time"`
	Status        string   `json:"status"`
	CreatedAt     string   `json:"created_at"`
	LastModified  string   `json:"last_modified"`
	DeletedAt     *string  `json:"deleted_at"`
}

const dateLayout = "2006-01-02"

func (t *Task) Response() TaskResponse {
	resp := TaskResponse{
		ID:            t.ID.String(),
		Title:         t.Title,
		Assignee:      t.Assignee,
		Description:   t.Description,
		EstimatedTime: t.EstimatedTime,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastModified:  t.LastModified.UTC().Format(time.RFC3339Nano),
		Labels:        []string{},
	}
	if t.DueDate != nil {
		d := t.DueDate.UTC().Format(dateLayout)
		resp.DueDate = &d
	}
	if t.Priority != nil {
		p := string(*t.Priority)
		resp.Priority = &p
	}
	if len(t.Labels) > 0 {
		resp.Labels = append(resp.Labels, t.Labels...)
	}
	if t.DeletedAt != nil {
		d := t.DeletedAt.UTC().Format(time.RFC3339Nano)
		resp.DeletedAt = &d
	}
	return resp
}
