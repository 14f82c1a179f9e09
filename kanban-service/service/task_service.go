package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chepyr/go-kanban-board/kanban-service/db"
	"github.com/chepyr/go-kanban-board/shared/models"
	"github.com/google/uuid"
)

// TaskService owns all single-task mutation logic. Every operation runs inside
// one database transaction; callers get serialized snapshots, never live rows.
type TaskService struct {
	db   *sql.DB
	repo *db.TaskRepository
	now  func() time.Time
}

func NewTaskService(database *sql.DB) *TaskService {
	return &TaskService{
		db:   database,
		repo: db.NewTaskRepository(database),
		now:  time.Now,
	}
}

// Allowed status transitions. Self-transitions are always allowed and are not
// listed here. The only disallowed pair is To Do -> Done.
var allowedTransitions = map[models.Status][]models.Status{
	models.StatusToDo:       {models.StatusInProgress},
	models.StatusInProgress: {models.StatusDone, models.StatusToDo},
	models.StatusDone:       {models.StatusInProgress, models.StatusToDo},
}

func transitionAllowed(from, to models.Status) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type CreateTaskInput struct {
	Title         string
	Assignee      *string
	DueDate       *time.Time
	Description   *string
	Priority      *string
	Labels        []string
	EstimatedTime *float64
	Status        string
}

func (s *TaskService) Create(ctx context.Context, input CreateTaskInput) (*models.TaskResponse, error) {
	title, err := ValidateTitle(input.Title)
	if err != nil {
		return nil, err
	}
	status, err := ValidateStatus(input.Status)
	if err != nil {
		return nil, err
	}
	var priority *models.Priority
	if input.Priority != nil {
		if priority, err = ValidatePriority(*input.Priority); err != nil {
			return nil, err
		}
	}
	now := s.now().UTC()
	var dueDate *time.Time
	if input.DueDate != nil {
		if err := ValidateDueDate(*input.DueDate, now); err != nil {
			return nil, err
		}
		d := truncateToDate(*input.DueDate)
		dueDate = &d
	}
	if input.EstimatedTime != nil {
		if err := ValidateEstimatedTime(*input.EstimatedTime); err != nil {
			return nil, err
		}
	}

	task := &models.Task{
		ID:            uuid.New(),
		Title:         title,
		Assignee:      cleanOptionalString(input.Assignee),
		DueDate:       dueDate,
		Description:   cleanOptionalString(input.Description),
		Priority:      priority,
		Labels:        CleanLabels(input.Labels),
		EstimatedTime: input.EstimatedTime,
		Status:        status,
		CreatedAt:     now,
		LastModified:  now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.repo.WithTx(tx).Insert(ctx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	resp := task.Response()
	return &resp, nil
}

// GetByID returns nil when no row exists; soft-deleted rows are still
// fetchable by id.
func (s *TaskService) GetByID(ctx context.Context, id uuid.UUID) (*models.TaskResponse, error) {
	task, err := s.repo.GetByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	resp := task.Response()
	return &resp, nil
}

// ListTasksInput carries the filter, sort and pagination parameters of the
// list operation. DefaultListTasksInput supplies the canonical defaults.
type ListTasksInput struct {
	Status       string
	Priority     string
	Assignee     string
	SearchTerm   string
	DueDateStart *time.Time
	DueDateEnd   *time.Time
	Limit        int
	Offset       int
	SortBy       string
	SortOrder    string
}

func DefaultListTasksInput() ListTasksInput {
	return ListTasksInput{Limit: 10, SortBy: "created_at", SortOrder: "desc"}
}

var sortableFields = map[string]bool{"created_at": true, "due_date": true, "priority": true}

// List returns the requested page plus the total count of the filtered set
// before pagination. Soft-deleted rows are included; callers filter on the
// returned deleted_at when they need active-only semantics.
func (s *TaskService) List(ctx context.Context, input ListTasksInput) ([]models.TaskResponse, int, error) {
	if !sortableFields[input.SortBy] {
		return nil, 0, fmt.Errorf("invalid sort_by %q, must be one of: created_at, due_date, priority", input.SortBy)
	}
	if input.SortOrder != "asc" && input.SortOrder != "desc" {
		return nil, 0, fmt.Errorf("invalid sort_order %q, must be asc or desc", input.SortOrder)
	}
	if input.Limit < 1 {
		return nil, 0, fmt.Errorf("limit must be at least 1, got: %d", input.Limit)
	}
	if input.Offset < 0 {
		return nil, 0, fmt.Errorf("offset must be non-negative, got: %d", input.Offset)
	}

	filter := db.TaskFilter{
		Status:     input.Status,
		Priority:   input.Priority,
		Assignee:   input.Assignee,
		SearchTerm: input.SearchTerm,
		Limit:      input.Limit,
		Offset:     input.Offset,
		SortBy:     input.SortBy,
		SortOrder:  input.SortOrder,
	}
	if input.DueDateStart != nil {
		d := truncateToDate(*input.DueDateStart)
		filter.DueDateStart = &d
	}
	if input.DueDateEnd != nil {
		d := truncateToDate(*input.DueDateEnd)
		filter.DueDateEnd = &d
	}

	tasks, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	responses := make([]models.TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, task.Response())
	}
	return responses, total, nil
}

// UpdateTaskInput is a field-level partial update. Fields left unset are not
// touched; fields explicitly set to null are cleared (where clearing is
// legal). ExpectedLastModified, when present, enables the optimistic
// concurrency check.
type UpdateTaskInput struct {
	Title                Optional[string]    `json:"title"`
	Assignee             Optional[string]    `json:"assignee"`
	DueDate              Optional[time.Time] `json:"due_date"`
	Description          Optional[string]    `json:"description"`
	Priority             Optional[string]    `json:"priority"`
	Labels               Optional[[]string]  `json:"labels"`
	EstimatedTime        Optional[float64]   `json:"estimated_time"`
	Status               Optional[string]    `json:"status"`
	ExpectedLastModified *time.Time          `json:"expected_last_modified"`
}

func (s *TaskService) Update(ctx context.Context, id uuid.UUID, input UpdateTaskInput) (*models.TaskResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	repo := s.repo.WithTx(tx)
	task, err := repo.GetByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &TaskNotFoundError{ID: id}
		}
		return nil, err
	}

	if input.ExpectedLastModified != nil {
		expected := input.ExpectedLastModified.UTC()
		actual := task.LastModified.UTC()
		if !expected.Equal(actual) {
			return nil, &OptimisticConcurrencyError{Expected: expected, Actual: actual}
		}
	}

	// Transition enforcement happens only when status is present in the
	// partial input; a violation aborts the whole update.
	if input.Status.Set {
		raw := ""
		if !input.Status.Null {
			raw = input.Status.Value
		}
		next, err := ValidateStatus(raw)
		if err != nil {
			return nil, err
		}
		if !transitionAllowed(task.Status, next) {
			return nil, &InvalidStatusTransitionError{From: task.Status, To: next}
		}
		task.Status = next
	}
	if input.Title.Set {
		raw := ""
		if !input.Title.Null {
			raw = input.Title.Value
		}
		title, err := ValidateTitle(raw)
		if err != nil {
			return nil, err
		}
		task.Title = title
	}
	if input.Assignee.Set {
		if input.Assignee.Null {
			task.Assignee = nil
		} else {
			task.Assignee = cleanOptionalString(&input.Assignee.Value)
		}
	}
	if input.DueDate.Set {
		if input.DueDate.Null {
			task.DueDate = nil
		} else {
			if err := ValidateDueDate(input.DueDate.Value, s.now()); err != nil {
				return nil, err
			}
			d := truncateToDate(input.DueDate.Value)
			task.DueDate = &d
		}
	}
	if input.Description.Set {
		if input.Description.Null {
			task.Description = nil
		} else {
			task.Description = cleanOptionalString(&input.Description.Value)
		}
	}
	if input.Priority.Set {
		if input.Priority.Null {
			task.Priority = nil
		} else {
			priority, err := ValidatePriority(input.Priority.Value)
			if err != nil {
				return nil, err
			}
			task.Priority = priority
		}
	}
	if input.Labels.Set {
		if input.Labels.Null {
			task.Labels = nil
		} else {
			task.Labels = CleanLabels(input.Labels.Value)
		}
	}
	if input.EstimatedTime.Set {
		if input.EstimatedTime.Null {
			task.EstimatedTime = nil
		} else {
			if err := ValidateEstimatedTime(input.EstimatedTime.Value); err != nil {
				return nil, err
			}
			task.EstimatedTime = &input.EstimatedTime.Value
		}
	}

	task.LastModified = s.now().UTC()
	if err := repo.Update(ctx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	resp := task.Response()
	return &resp, nil
}

type DeleteResult struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// Delete soft-deletes by default (row retained, deleted_at set); hard delete
// physically removes the row.
func (s *TaskService) Delete(ctx context.Context, id uuid.UUID, soft bool) (*DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	repo := s.repo.WithTx(tx)
	task, err := repo.GetByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &TaskNotFoundError{ID: id}
		}
		return nil, err
	}

	message := "Task hard-deleted successfully"
	if soft {
		now := s.now().UTC()
		task.DeletedAt = &now
		task.LastModified = now
		if err := repo.Update(ctx, task); err != nil {
			return nil, err
		}
		message = "Task soft-deleted successfully"
	} else {
		if err := repo.HardDelete(ctx, id.String()); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &DeleteResult{Message: message, TaskID: id.String()}, nil
}
