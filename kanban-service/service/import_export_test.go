package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func newTestEngine(t *testing.T) (*sql.DB, *TaskService, *ImportExportService) {
	t.Helper()
	dbx := newTestDB(t)
	return dbx, NewTaskService(dbx), NewImportExportService(dbx)
}

func newImportEntry(title, status string) TaskImportData {
	return TaskImportData{Title: title, Status: status}
}

func activeTitles(t *testing.T, engine *ImportExportService) []string {
	t.Helper()
	tasks, err := engine.repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	titles := make([]string, 0, len(tasks))
	for _, task := range tasks {
		titles = append(titles, task.Title)
	}
	return titles
}

func TestExportAll_EmptyDatabase(t *testing.T) {
	_, _, engine := newTestEngine(t)

	data, err := engine.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty export = %q, want []", data)
	}
}

func TestExportRestore_RoundTrip(t *testing.T) {
	_, svc, engine := newTestEngine(t)

	est := 4.5
	due := time.Now().UTC().AddDate(0, 1, 0)
	first := mustCreate(t, svc, CreateTaskInput{
		Title: "Write spec", Status: "To Do", Assignee: strPtr("alice"),
		Priority: strPtr("High"), Labels: []string{"docs"}, EstimatedTime: &est, DueDate: &due,
	})
	second := mustCreate(t, svc, CreateTaskInput{Title: "Review spec", Status: "In Progress"})

	// soft-deleted rows are not exported
	hidden := mustCreate(t, svc, CreateTaskInput{Title: "Old chore", Status: "Done"})
	if _, err := svc.Delete(context.Background(), uuid.MustParse(hidden.ID), true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	data, err := engine.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	var exported []TaskImportData
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("exported %d entries, want 2", len(exported))
	}

	if err := engine.RestoreFromBackup(context.Background(), data); err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}

	for _, want := range []struct{ id, title string }{
		{first.ID, "Write spec"},
		{second.ID, "Review spec"},
	} {
		restored, err := svc.GetByID(context.Background(), uuid.MustParse(want.id))
		if err != nil {
			t.Fatalf("GetByID after restore: %v", err)
		}
		if restored == nil {
			t.Fatalf("task %q lost in round trip", want.title)
		}
		if restored.Title != want.title {
			t.Errorf("restored title = %q, want %q", restored.Title, want.title)
		}
	}

	// ids and timestamps survive verbatim
	restored, err := svc.GetByID(context.Background(), uuid.MustParse(first.ID))
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if restored.CreatedAt != first.CreatedAt || restored.LastModified != first.LastModified {
		t.Errorf("timestamps changed in round trip: %+v vs %+v", restored, first)
	}
	if len(restored.Labels) != 1 || restored.Labels[0] != "docs" {
		t.Errorf("labels lost in round trip: %v", restored.Labels)
	}
	if restored.Priority == nil || *restored.Priority != "High" {
		t.Errorf("priority lost in round trip: %v", restored.Priority)
	}
}

func TestRestore_InvalidJSONLeavesDataIntact(t *testing.T) {
	_, svc, engine := newTestEngine(t)
	created := mustCreate(t, svc, CreateTaskInput{Title: "Keep me", Status: "To Do"})

	for _, bad := range []string{"not json at all", `{"title": "object not array"}`} {
		if err := engine.RestoreFromBackup(context.Background(), []byte(bad)); err == nil {
			t.Errorf("RestoreFromBackup(%q) should fail", bad)
		}
	}

	after, err := svc.GetByID(context.Background(), uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after == nil {
		t.Fatal("failed restore must not delete existing rows")
	}
}

func TestRestore_InvalidEntryRollsBackEverything(t *testing.T) {
	_, svc, engine := newTestEngine(t)
	created := mustCreate(t, svc, CreateTaskInput{Title: "Keep me", Status: "To Do"})

	backup := `[
	  {"title": "Fine entry", "status": "To Do"},
	  {"title": "Missing status"}
	]`
	err := engine.RestoreFromBackup(context.Background(), []byte(backup))
	if err == nil {
		t.Fatal("restore with invalid entry should fail")
	}
	if !strings.Contains(err.Error(), "index 1") {
		t.Errorf("error should name the failing index: %v", err)
	}

	// neither the delete nor the valid insert stuck
	after, err := svc.GetByID(context.Background(), uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after == nil {
		t.Fatal("rollback should keep pre-existing rows")
	}
	titles := activeTitles(t, engine)
	if len(titles) != 1 || titles[0] != "Keep me" {
		t.Errorf("active set after failed restore: %v", titles)
	}
}

func TestRestore_EnforcesEstimatedTimeRange(t *testing.T) {
	_, _, engine := newTestEngine(t)

	backup := `[{"title": "Too big", "status": "To Do", "estimated_time": 9.5}]`
	if err := engine.RestoreFromBackup(context.Background(), []byte(backup)); err == nil {
		t.Fatal("estimated_time outside [0.5, 8.0] should fail the wire schema")
	}
}

func TestImport_InvalidStrategy(t *testing.T) {
	_, _, engine := newTestEngine(t)

	_, err := engine.ImportTasks(context.Background(), nil,
		[]TaskImportData{newImportEntry("t", "To Do")}, "overwrite")
	if err == nil {
		t.Fatal("invalid conflict_strategy should fail before touching the database")
	}
	if len(activeTitles(t, engine)) != 0 {
		t.Error("invalid strategy must not insert anything")
	}
}

func TestImport_SkipKeepsExistingRow(t *testing.T) {
	_, svc, engine := newTestEngine(t)
	created := mustCreate(t, svc, CreateTaskInput{Title: "X", Status: "To Do"})

	entry := newImportEntry("  x  ", "Done") // title matching is case/whitespace-insensitive
	entry.CreatedAt = &created.CreatedAt

	result, err := engine.ImportTasks(context.Background(), nil, []TaskImportData{entry}, StrategySkip)
	if err != nil {
		t.Fatalf("ImportTasks: %v", err)
	}
	if result.Imported != 0 || result.Skipped != 1 || result.Updated != 0 || result.Failed != 0 {
		t.Errorf("skip result = %+v", result)
	}

	after, err := svc.GetByID(context.Background(), uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after == nil || after.Status != "To Do" {
		t.Errorf("skip must leave the existing row untouched: %+v", after)
	}
}

func TestImport_ReplaceSwapsRow(t *testing.T) {
	_, svc, engine := newTestEngine(t)
	created := mustCreate(t, svc, CreateTaskInput{Title: "X", Status: "To Do"})

	newID := uuid.NewString()
	entry := newImportEntry("X", "Done")
	entry.ID = &newID
	entry.CreatedAt = &created.CreatedAt

	result, err := engine.ImportTasks(context.Background(), nil, []TaskImportData{entry}, StrategyReplace)
	if err != nil {
		t.Fatalf("ImportTasks: %v", err)
	}
	if result.Imported != 0 || result.Updated != 1 {
		t.Errorf("replace result = %+v", result)
	}

	old, err := svc.GetByID(context.Background(), uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("GetByID old: %v", err)
	}
	if old != nil {
		t.Error("replace must hard-delete the old row")
	}
	replacement, err := svc.GetByID(context.Background(), uuid.MustParse(newID))
	if err != nil {
		t.Fatalf("GetByID new: %v", err)
	}
	if replacement == nil || replacement.Status != "Done" {
		t.Errorf("replacement row wrong: %+v", replacement)
	}
}

func TestImport_MergeWithTimestamp(t *testing.T) {
	_, svc, engine := newTestEngine(t)
	created := mustCreate(t, svc, CreateTaskInput{Title: "X", Status: "To Do"})

	// incoming strictly newer wins, id and created_at preserved
	newer := time.Now().UTC().Add(time.Hour).Format(time.RFC3339Nano)
	entry := newImportEntry("X", "Done")
	entry.CreatedAt = &created.CreatedAt
	entry.LastModified = &newer

	result, err := engine.ImportTasks(context.Background(), nil, []TaskImportData{entry}, StrategyMergeWithTimestamp)
	if err != nil {
		t.Fatalf("ImportTasks: %v", err)
	}
	if result.Updated != 1 || result.Skipped != 0 {
		t.Errorf("merge newer result = %+v", result)
	}
	after, err := svc.GetByID(context.Background(), uuid.MustParse(created.ID))
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after == nil || after.Status != "Done" || after.CreatedAt != created.CreatedAt {
		t.Errorf("merge must update in place: %+v", after)
	}

	// incoming older (or missing) is skipped
	older := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339Nano)
	entry.Status = "To Do"
	entry.LastModified = &older
	result, err = engine.ImportTasks(context.Background(), nil, []TaskImportData{entry}, StrategyMergeWithTimestamp)
	if err != nil {
		t.Fatalf("ImportTasks older: %v", err)
	}
	if result.Skipped != 1 || result.Updated != 0 {
		t.Errorf("merge older result = %+v", result)
	}

	noStamp := newImportEntry("X", "To Do")
	noStamp.CreatedAt = &created.CreatedAt
	result, err = engine.ImportTasks(context.Background(), nil, []TaskImportData{noStamp}, StrategyMergeWithTimestamp)
	if err != nil {
		t.Fatalf("ImportTasks no timestamp: %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("merge without incoming last_modified result = %+v", result)
	}
}

func TestImport_NoCreatedAtNeverMatches(t *testing.T) {
	_, svc, engine := newTestEngine(t)
	mustCreate(t, svc, CreateTaskInput{Title: "X", Status: "To Do"})

	result, err := engine.ImportTasks(context.Background(), nil,
		[]TaskImportData{newImportEntry("X", "Done")}, StrategySkip)
	if err != nil {
		t.Fatalf("ImportTasks: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 0 {
		t.Errorf("entry without created_at must always import: %+v", result)
	}
	if titles := activeTitles(t, engine); len(titles) != 2 {
		t.Errorf("expected both rows, got %v", titles)
	}
}

func TestImport_DifferentDateIsNotDuplicate(t *testing.T) {
	_, svc, engine := newTestEngine(t)
	mustCreate(t, svc, CreateTaskInput{Title: "X", Status: "To Do"})

	otherDay := time.Now().UTC().AddDate(0, 0, -3).Format(time.RFC3339Nano)
	entry := newImportEntry("X", "Done")
	entry.CreatedAt = &otherDay

	result, err := engine.ImportTasks(context.Background(), nil, []TaskImportData{entry}, StrategySkip)
	if err != nil {
		t.Fatalf("ImportTasks: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("same title on a different date must not collide: %+v", result)
	}
}

func TestImport_AtomicBatchFailure(t *testing.T) {
	_, _, engine := newTestEngine(t)

	entries := []TaskImportData{
		newImportEntry("Good one", "To Do"),
		newImportEntry("Bad one", "Not A Status"),
		newImportEntry("Another good one", "Done"),
	}
	result, err := engine.ImportTasks(context.Background(), nil, entries, StrategySkip)
	if err == nil {
		t.Fatal("batch with a failing entry must error")
	}
	if result == nil || result.Failed != 1 || result.Imported != 2 {
		t.Errorf("summary = %+v, want failed=1 imported=2", result)
	}

	// every successful insert from the batch was rolled back
	if titles := activeTitles(t, engine); len(titles) != 0 {
		t.Errorf("failed batch must change zero rows, got %v", titles)
	}
}

func TestImport_BorrowedTransaction(t *testing.T) {
	dbx, _, engine := newTestEngine(t)

	tx, err := dbx.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	result, err := engine.ImportTasks(context.Background(), tx,
		[]TaskImportData{newImportEntry("In caller tx", "To Do")}, StrategySkip)
	if err != nil {
		t.Fatalf("ImportTasks in borrowed tx: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("result = %+v", result)
	}

	// the engine must not have committed the caller's transaction
	if err := tx.Rollback(); err != nil {
		t.Fatalf("caller rollback: %v", err)
	}
	if titles := activeTitles(t, engine); len(titles) != 0 {
		t.Errorf("borrowed tx was committed by the engine: %v", titles)
	}
}
