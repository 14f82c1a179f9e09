// Package state keeps a denormalized "tasks grouped by status" view for board
// rendering. It is a read-through cache over the task service's list results
// with explicit invalidate-and-reload semantics, never a shared mutable global
// that callers touch directly.
package state

import (
	"context"
	"sync"

	"github.com/chepyr/go-kanban-board/kanban-service/service"
	"github.com/chepyr/go-kanban-board/shared/models"
)

const loadPageSize = 200

// TaskLister is the slice of the task service the cache depends on.
type TaskLister interface {
	List(ctx context.Context, input service.ListTasksInput) ([]models.TaskResponse, int, error)
}

type BoardCache struct {
	lister TaskLister

	mu      sync.Mutex
	loaded  bool
	columns map[models.Status][]models.TaskResponse
}

func NewBoardCache(lister TaskLister) *BoardCache {
	return &BoardCache{lister: lister}
}

// Snapshot returns the board grouped by status, loading from the service on
// first use or after Invalidate. All three columns are always present.
func (c *BoardCache) Snapshot(ctx context.Context) (map[models.Status][]models.TaskResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if err := c.reload(ctx); err != nil {
			return nil, err
		}
	}

	snapshot := make(map[models.Status][]models.TaskResponse, len(c.columns))
	for status, tasks := range c.columns {
		snapshot[status] = append([]models.TaskResponse(nil), tasks...)
	}
	return snapshot, nil
}

// Invalidate drops the cached view; the next Snapshot reloads it. Call after
// every mutating service operation.
func (c *BoardCache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.columns = nil
	c.mu.Unlock()
}

// Refresh reloads immediately instead of waiting for the next Snapshot.
func (c *BoardCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload(ctx)
}

func (c *BoardCache) reload(ctx context.Context) error {
	columns := map[models.Status][]models.TaskResponse{
		models.StatusToDo:       {},
		models.StatusInProgress: {},
		models.StatusDone:       {},
	}

	input := service.DefaultListTasksInput()
	input.Limit = loadPageSize
	input.SortOrder = "asc"

	for {
		tasks, total, err := c.lister.List(ctx, input)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			// The list operation does not filter soft-deleted rows itself.
			if task.DeletedAt != nil {
				continue
			}
			status := models.Status(task.Status)
			columns[status] = append(columns[status], task)
		}
		input.Offset += len(tasks)
		if input.Offset >= total || len(tasks) == 0 {
			break
		}
	}

	c.columns = columns
	c.loaded = true
	return nil
}
