package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chepyr/go-kanban-board/shared/models"
	"github.com/google/uuid"
)

// Querier is satisfied by *sql.DB and *sql.Tx so the same repository methods
// can run standalone or inside a caller-owned transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// defines methods for task db operations
type TaskRepositoryInterface interface {
	Insert(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	HardDelete(ctx context.Context, id string) error
}

type TaskRepository struct {
	q Querier
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{q: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *TaskRepository) WithTx(tx *sql.Tx) *TaskRepository {
	return &TaskRepository{q: tx}
}

const taskColumns = `id, title, assignee, due_date, description, priority, labels,
 estimated_time, status, created_at, last_modified, deleted_at`

func (r *TaskRepository) Insert(ctx context.Context, task *models.Task) error {
	labels, err := marshalLabels(task.Labels)
	if err != nil {
		return err
	}
	query := `INSERT INTO tasks (` + taskColumns + `)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.q.ExecContext(ctx, query,
		task.ID.String(), task.Title, task.Assignee, task.DueDate, task.Description,
		priorityArg(task.Priority), labels, task.EstimatedTime, string(task.Status),
		task.CreatedAt, task.LastModified, task.DeletedAt)
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.q.QueryRowContext(ctx, query, id))
}

func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	labels, err := marshalLabels(task.Labels)
	if err != nil {
		return err
	}
	query := `UPDATE tasks SET title = $1, assignee = $2, due_date = $3, description = $4,
	 priority = $5, labels = $6, estimated_time = $7, status = $8, last_modified = $9,
	 deleted_at = $10 WHERE id = $11`

	res, err := r.q.ExecContext(ctx, query,
		task.Title, task.Assignee, task.DueDate, task.Description,
		priorityArg(task.Priority), labels, task.EstimatedTime, string(task.Status),
		task.LastModified, task.DeletedAt, task.ID.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("task with id %s does not exist", task.ID)
	}
	return nil
}

func (r *TaskRepository) HardDelete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("task with id %s does not exist", id)
	}
	return nil
}

// ListActive returns all rows where deleted_at is null, used by export and the
// import duplicate index.
func (r *TaskRepository) ListActive(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE deleted_at IS NULL`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// DeleteActive hard-deletes every active row and reports how many went away.
func (r *TaskRepository) DeleteActive(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM tasks WHERE deleted_at IS NULL`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TaskFilter mirrors the query surface of the list endpoint. Zero values mean
// "no filter"; Limit/Offset and the sort fields are validated by the service
// before this is built. Date bounds are inclusive midnight-UTC dates.
type TaskFilter struct {
	Status       string
	Priority     string
	Assignee     string
	SearchTerm   string
	DueDateStart *time.Time
	DueDateEnd   *time.Time
	Limit        int
	Offset       int
	SortBy       string // created_at | due_date | priority
	SortOrder    string // asc | desc
}

// List returns the filtered page and the total count of the filtered set
// before pagination. Soft-deleted rows are not excluded here; callers filter
// on deleted_at when they need active-only semantics.
func (r *TaskRepository) List(ctx context.Context, f TaskFilter) ([]*models.Task, int, error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = "+arg(f.Priority))
	}
	if f.Assignee != "" {
		conds = append(conds, "LOWER(COALESCE(assignee, '')) LIKE "+arg("%"+strings.ToLower(f.Assignee)+"%"))
	}
	if f.SearchTerm != "" {
		p := arg("%" + strings.ToLower(f.SearchTerm) + "%")
		conds = append(conds, "(LOWER(title) LIKE "+p+" OR LOWER(COALESCE(description, '')) LIKE "+p+")")
	}
	if f.DueDateStart != nil {
		conds = append(conds, "due_date >= "+arg(*f.DueDateStart))
	}
	if f.DueDateEnd != nil {
		conds = append(conds, "due_date <= "+arg(*f.DueDateEnd))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM tasks` + where
	if err := r.q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + where +
		` ORDER BY ` + sortExpr(f.SortBy) + ` ` + strings.ToUpper(f.SortOrder) +
		` LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// priority sorts by logical rank, not alphabetically
func sortExpr(sortBy string) string {
	if sortBy == "priority" {
		return `CASE priority
		 WHEN 'Critical' THEN 4 WHEN 'High' THEN 3 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 1
		 ELSE 0 END`
	}
	return sortBy
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		id            string
		assignee      sql.NullString
		dueDate       sql.NullTime
		description   sql.NullString
		priority      sql.NullString
		labels        sql.NullString
		estimatedTime sql.NullFloat64
		status        string
		deletedAt     sql.NullTime
	)
	task := &models.Task{}
	err := row.Scan(&id, &task.Title, &assignee, &dueDate, &description, &priority,
		&labels, &estimatedTime, &status, &task.CreatedAt, &task.LastModified, &deletedAt)
	if err != nil {
		return nil, err
	}

	task.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid task id in database: %w", err)
	}
	task.Status = models.Status(status)
	task.CreatedAt = task.CreatedAt.UTC()
	task.LastModified = task.LastModified.UTC()
	if assignee.Valid {
		task.Assignee = &assignee.String
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		task.DueDate = &d
	}
	if description.Valid {
		task.Description = &description.String
	}
	if priority.Valid {
		p := models.Priority(priority.String)
		task.Priority = &p
	}
	if labels.Valid && labels.String != "" {
		if err := json.Unmarshal([]byte(labels.String), &task.Labels); err != nil {
			return nil, fmt.Errorf("invalid labels in database: %w", err)
		}
	}
	if estimatedTime.Valid {
		task.EstimatedTime = &estimatedTime.Float64
	}
	if deletedAt.Valid {
		d := deletedAt.Time.UTC()
		task.DeletedAt = &d
	}
	return task, nil
}

func collectTasks(rows *sql.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func marshalLabels(labels []string) (*string, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(labels)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

func priorityArg(p *models.Priority) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}
