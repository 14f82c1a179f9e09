package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/chepyr/go-kanban-board/kanban-service/service"
)

// bulk payloads can be much larger than single-task bodies
const maxImportBody = 10 << 20 // 10MB

// HandleExport serves GET /api/tasks/export: all active tasks as a
// pretty-printed JSON array.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.RateLimiter.Allow(clientIP(r)) {
		sendError(w, "Too many export requests", http.StatusTooManyRequests)
		return
	}

	data, err := h.ImportExport.ExportAll(r.Context())
	if err != nil {
		sendError(w, "Failed to export tasks", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="tasks_export.json"`)
	w.Write(data)
}

// HandleImport serves POST /api/tasks/import with body
// {"tasks": [...], "conflict_strategy": "skip"|"replace"|"merge_with_timestamp"}.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.RateLimiter.Allow(clientIP(r)) {
		sendError(w, "Too many import requests", http.StatusTooManyRequests)
		return
	}
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)

	var input struct {
		Tasks            []service.TaskImportData `json:"tasks"`
		ConflictStrategy string                   `json:"conflict_strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.ImportExport.ImportTasks(r.Context(), nil, input.Tasks, input.ConflictStrategy)
	if err != nil {
		if result != nil {
			// batch rolled back because some entries failed
			sendJSON(w, map[string]any{"error": err.Error(), "summary": result}, http.StatusUnprocessableEntity)
			return
		}
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Board.Invalidate()
	sendJSON(w, result, http.StatusOK)
}

// HandleRestore serves POST /api/tasks/restore; the body is the raw JSON
// array produced by export. This is a full destructive overwrite.
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.RateLimiter.Allow(clientIP(r)) {
		sendError(w, "Too many restore requests", http.StatusTooManyRequests)
		return
	}
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if err := h.ImportExport.RestoreFromBackup(r.Context(), body); err != nil {
		sendError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h.Board.Invalidate()
	sendJSON(w, map[string]string{"message": "Database restored from backup"}, http.StatusOK)
}
