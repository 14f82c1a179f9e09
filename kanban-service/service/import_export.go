package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chepyr/go-kanban-board/kanban-service/db"
	"github.com/chepyr/go-kanban-board/shared/models"
	"github.com/google/uuid"
)

// Conflict strategies for bulk import.
const (
	StrategySkip               = "skip"
	StrategyReplace            = "replace"
	StrategyMergeWithTimestamp = "merge_with_timestamp"
)

// TaskImportData is the wire shape used by export, restore and bulk import.
// Unlike the create path, id and timestamps may be supplied and are preserved
// verbatim where the operation calls for it.
type TaskImportData struct {
	ID            *string  `json:"id"`
	Title         string   `json:"title"`
	Assignee      *string  `json:"assignee"`
	DueDate       *string  `json:"due_date"`
	Description   *string  `json:"description"`
	Priority      *string  `json:"priority"`
	Labels        []string `json:"labels"`
	EstimatedTime *float64 `json:"estimated_time"`
	Status        string   `json:"status"`
	CreatedAt     *string  `json:"created_at"`
	LastModified  *string  `json:"last_modified"`
	DeletedAt     *string  `json:"deleted_at"`
}

// ImportResult summarizes one bulk import call.
type ImportResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ImportExportService implements the JSON import/export engine. It reuses the
// task repository but bypasses the single-task service API to operate in bulk
// within one transaction.
type ImportExportService struct {
	db   *sql.DB
	repo *db.TaskRepository
	now  func() time.Time
}

func NewImportExportService(database *sql.DB) *ImportExportService {
	return &ImportExportService{
		db:   database,
		repo: db.NewTaskRepository(database),
		now:  time.Now,
	}
}

// ExportAll serializes every active task (deleted_at is null) to a
// pretty-printed JSON array.
func (s *ImportExportService) ExportAll(ctx context.Context) ([]byte, error) {
	tasks, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]TaskImportData, 0, len(tasks))
	for _, task := range tasks {
		entries = append(entries, exportEntry(task))
	}
	return json.MarshalIndent(entries, "", "  ")
}

// RestoreFromBackup performs a full destructive overwrite inside one
// transaction: hard-deletes all active rows, then validates the whole input
// array before inserting the replacements. Ids and timestamps from the backup
// are preserved verbatim. Any parse or validation error rolls everything back.
func (s *ImportExportService) RestoreFromBackup(ctx context.Context, backup []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	repo := s.repo.WithTx(tx)
	if _, err := repo.DeleteActive(ctx); err != nil {
		return err
	}

	var rawEntries []json.RawMessage
	if err := json.Unmarshal(backup, &rawEntries); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}

	now := s.now().UTC()
	for i, raw := range rawEntries {
		var data TaskImportData
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("validation error in task at index %d: %w", i, err)
		}
		entry, err := normalizeImportEntry(data)
		if err != nil {
			return fmt.Errorf("validation error in task at index %d: %w", i, err)
		}
		if err := repo.Insert(ctx, entry.task(now)); err != nil {
			return fmt.Errorf("failed to restore task at index %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ImportTasks imports entries with the given conflict strategy. A non-nil tx
// is borrowed: the batch joins the caller's transaction and the caller
// commits. With tx == nil the service opens and owns one.
//
// Per-entry errors are counted as failed and processing continues, but any
// failure rolls the whole transaction back at the end, losing the batch's
// successful entries as well. A borrowed transaction is rolled back too, which
// poisons it for the caller.
func (s *ImportExportService) ImportTasks(ctx context.Context, tx *sql.Tx, entries []TaskImportData, strategy string) (*ImportResult, error) {
	switch strategy {
	case StrategySkip, StrategyReplace, StrategyMergeWithTimestamp:
	default:
		return nil, fmt.Errorf("invalid conflict_strategy %q, must be one of: %s, %s, %s",
			strategy, StrategySkip, StrategyReplace, StrategyMergeWithTimestamp)
	}

	borrowed := tx != nil
	if !borrowed {
		var err error
		if tx, err = s.db.BeginTx(ctx, nil); err != nil {
			return nil, err
		}
	}
	rollback := func() {
		_ = tx.Rollback()
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.ListActive(ctx)
	if err != nil {
		if !borrowed {
			rollback()
		}
		return nil, err
	}

	// O(1) duplicate lookup keyed by (normalized title, UTC creation date).
	index := make(map[dupKey]*models.Task, len(existing))
	for _, task := range existing {
		index[dupKeyFor(task.Title, task.CreatedAt)] = task
	}

	result := &ImportResult{}
	now := s.now().UTC()

	for _, data := range entries {
		entry, err := normalizeImportEntry(data)
		if err != nil {
			result.Failed++
			continue
		}

		var existingTask *models.Task
		var key *dupKey
		if entry.createdAt != nil {
			// Entries without created_at never match anything.
			k := dupKeyFor(entry.title, *entry.createdAt)
			key = &k
			existingTask = index[k]
		}

		if existingTask == nil {
			task := entry.task(now)
			if err := repo.Insert(ctx, task); err != nil {
				result.Failed++
				continue
			}
			result.Imported++
			if key != nil {
				index[*key] = task
			}
			continue
		}

		switch strategy {
		case StrategySkip:
			result.Skipped++

		case StrategyReplace:
			if err := repo.HardDelete(ctx, existingTask.ID.String()); err != nil {
				result.Failed++
				continue
			}
			task := entry.task(now)
			if err := repo.Insert(ctx, task); err != nil {
				result.Failed++
				continue
			}
			result.Updated++
			index[*key] = task

		case StrategyMergeWithTimestamp:
			incoming := time.Time{}
			if entry.lastModified != nil {
				incoming = entry.lastModified.UTC()
			}
			if incoming.After(existingTask.LastModified.UTC()) {
				entry.mergeInto(existingTask)
				if err := repo.Update(ctx, existingTask); err != nil {
					result.Failed++
					continue
				}
				result.Updated++
			} else {
				result.Skipped++
			}
		}
	}

	if result.Failed > 0 {
		rollback()
		return result, fmt.Errorf("import failed with %d task processing errors", result.Failed)
	}
	if !borrowed {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type dupKey struct {
	title string
	day   string
}

func dupKeyFor(title string, createdAt time.Time) dupKey {
	return dupKey{
		title: strings.ToLower(strings.TrimSpace(title)),
		day:   createdAt.UTC().Format("2006-01-02"),
	}
}

// importEntry is a fully validated, UTC-normalized import record.
type importEntry struct {
	id            *uuid.UUID
	title         string
	assignee      *string
	dueDate       *time.Time
	description   *string
	priority      *models.Priority
	labels        []string
	estimatedTime *float64
	status        models.Status
	createdAt     *time.Time
	lastModified  *time.Time
	deletedAt     *time.Time
}

func normalizeImportEntry(data TaskImportData) (*importEntry, error) {
	if err := validateEntrySchema(data); err != nil {
		return nil, err
	}

	entry := &importEntry{
		assignee:      cleanOptionalString(data.Assignee),
		description:   cleanOptionalString(data.Description),
		labels:        CleanLabels(data.Labels),
		estimatedTime: data.EstimatedTime,
	}

	var err error
	if entry.title, err = ValidateTitle(data.Title); err != nil {
		return nil, err
	}
	if entry.status, err = ValidateStatus(data.Status); err != nil {
		return nil, err
	}
	if data.Priority != nil {
		if entry.priority, err = ValidatePriority(*data.Priority); err != nil {
			return nil, err
		}
	}
	if data.ID != nil {
		id, err := uuid.Parse(*data.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid task id %q: %w", *data.ID, err)
		}
		entry.id = &id
	}
	if data.DueDate != nil {
		d, err := parseImportDate(*data.DueDate)
		if err != nil {
			return nil, fmt.Errorf("invalid due_date: %w", err)
		}
		entry.dueDate = &d
	}
	if entry.createdAt, err = parseImportTimestamp("created_at", data.CreatedAt); err != nil {
		return nil, err
	}
	if entry.lastModified, err = parseImportTimestamp("last_modified", data.LastModified); err != nil {
		return nil, err
	}
	if entry.deletedAt, err = parseImportTimestamp("deleted_at", data.DeletedAt); err != nil {
		return nil, err
	}
	return entry, nil
}

// task builds a new row from the entry. Missing id and timestamps fall back to
// a fresh uuid and now, matching create semantics.
func (e *importEntry) task(now time.Time) *models.Task {
	task := &models.Task{
		Title:         e.title,
		Assignee:      e.assignee,
		DueDate:       e.dueDate,
		Description:   e.description,
		Priority:      e.priority,
		Labels:        e.labels,
		EstimatedTime: e.estimatedTime,
		Status:        e.status,
		CreatedAt:     now,
		LastModified:  now,
		DeletedAt:     e.deletedAt,
	}
	if e.id != nil {
		task.ID = *e.id
	} else {
		task.ID = uuid.New()
	}
	if e.createdAt != nil {
		task.CreatedAt = *e.createdAt
	}
	if e.lastModified != nil {
		task.LastModified = *e.lastModified
	}
	return task
}

// mergeInto updates an existing row in place, preserving its id and
// created_at.
func (e *importEntry) mergeInto(task *models.Task) {
	task.Title = e.title
	task.Assignee = e.assignee
	task.DueDate = e.dueDate
	task.Description = e.description
	task.Priority = e.priority
	task.Labels = e.labels
	task.EstimatedTime = e.estimatedTime
	task.Status = e.status
	task.DeletedAt = e.deletedAt
	if e.lastModified != nil {
		task.LastModified = *e.lastModified
	}
}

func exportEntry(task *models.Task) TaskImportData {
	id := task.ID.String()
	createdAt := task.CreatedAt.UTC().Format(time.RFC3339Nano)
	lastModified := task.LastModified.UTC().Format(time.RFC3339Nano)
	entry := TaskImportData{
		ID:            &id,
		Title:         task.Title,
		Assignee:      task.Assignee,
		Description:   task.Description,
		Labels:        task.Labels,
		EstimatedTime: task.EstimatedTime,
		Status:        string(task.Status),
		CreatedAt:     &createdAt,
		LastModified:  &lastModified,
	}
	if task.DueDate != nil {
		d := task.DueDate.UTC().Format("2006-01-02")
		entry.DueDate = &d
	}
	if task.Priority != nil {
		p := string(*task.Priority)
		entry.Priority = &p
	}
	if task.DeletedAt != nil {
		d := task.DeletedAt.UTC().Format(time.RFC3339Nano)
		entry.DeletedAt = &d
	}
	return entry
}

func parseImportDate(value string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return d.UTC(), nil
}

// parseImportTimestamp accepts RFC 3339 and naive ISO timestamps; naive values
// are assumed to be UTC.
func parseImportTimestamp(field string, value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(*value)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		u := t.UTC()
		return &u, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", raw); err == nil {
		u := t.UTC()
		return &u, nil
	}
	return nil, fmt.Errorf("invalid datetime format for %s: %q", field, raw)
}
