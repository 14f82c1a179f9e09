package state

import (
	"context"
	"database/sql"
	"testing"

	kdb "github.com/chepyr/go-kanban-board/kanban-service/db"
	"github.com/chepyr/go-kanban-board/kanban-service/service"
	"github.com/chepyr/go-kanban-board/shared/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func newBoardFixture(t *testing.T) (*service.TaskService, *BoardCache) {
	t.Helper()
	dbx, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbx.SetMaxOpenConns(1)
	if err := kdb.Migrate(dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })

	svc := service.NewTaskService(dbx)
	return svc, NewBoardCache(svc)
}

func create(t *testing.T, svc *service.TaskService, title, status string) models.TaskResponse {
	t.Helper()
	task, err := svc.Create(context.Background(), service.CreateTaskInput{Title: title, Status: status})
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return *task
}

func TestSnapshot_GroupsByStatus(t *testing.T) {
	svc, cache := newBoardFixture(t)
	create(t, svc, "Plan", "To Do")
	create(t, svc, "Build", "In Progress")
	create(t, svc, "Test", "In Progress")

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	// all three columns exist even when empty
	for _, status := range models.AllStatuses() {
		if _, ok := snapshot[status]; !ok {
			t.Errorf("column %q missing from snapshot", status)
		}
	}
	if len(snapshot[models.StatusToDo]) != 1 || len(snapshot[models.StatusInProgress]) != 2 {
		t.Errorf("unexpected grouping: todo=%d in-progress=%d",
			len(snapshot[models.StatusToDo]), len(snapshot[models.StatusInProgress]))
	}
	if len(snapshot[models.StatusDone]) != 0 {
		t.Errorf("done column should be empty, got %d", len(snapshot[models.StatusDone]))
	}
}

func TestSnapshot_ExcludesSoftDeleted(t *testing.T) {
	svc, cache := newBoardFixture(t)
	create(t, svc, "Visible", "To Do")
	hidden := create(t, svc, "Hidden", "To Do")
	if _, err := svc.Delete(context.Background(), uuid.MustParse(hidden.ID), true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	column := snapshot[models.StatusToDo]
	if len(column) != 1 || column[0].Title != "Visible" {
		t.Errorf("soft-deleted task leaked into snapshot: %+v", column)
	}
}

func TestSnapshot_ReloadsAfterInvalidate(t *testing.T) {
	svc, cache := newBoardFixture(t)
	create(t, svc, "Early", "To Do")

	first, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(first[models.StatusToDo]) != 1 {
		t.Fatalf("seed snapshot: %+v", first)
	}

	// without invalidation the cached view is served as-is
	create(t, svc, "Late", "To Do")
	stale, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(stale[models.StatusToDo]) != 1 {
		t.Errorf("snapshot reloaded without invalidation: %+v", stale[models.StatusToDo])
	}

	cache.Invalidate()
	fresh, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(fresh[models.StatusToDo]) != 2 {
		t.Errorf("invalidate should trigger a reload: %+v", fresh[models.StatusToDo])
	}
}

func TestSnapshot_CopyIsIsolated(t *testing.T) {
	svc, cache := newBoardFixture(t)
	create(t, svc, "Original", "To Do")

	snapshot, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snapshot[models.StatusToDo][0].Title = "Mutated"

	again, err := cache.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if again[models.StatusToDo][0].Title != "Original" {
		t.Error("mutating a snapshot must not affect the cache")
	}
}
