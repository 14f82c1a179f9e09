package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/chepyr/go-kanban-board/kanban-service/service"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

/*
handles routes:
- GET /api/tasks - list tasks with filters/sort/pagination
- POST /api/tasks - create a new task
*/
func (h *Handler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r)

	case http.MethodPost:
		h.createTask(w, r)

	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := service.DefaultListTasksInput()
	input.Status = q.Get("status")
	input.Priority = q.Get("priority")
	input.Assignee = q.Get("assignee")
	input.SearchTerm = q.Get("search_term")

	if v := q.Get("sort_by"); v != "" {
		input.SortBy = v
	}
	if v := q.Get("sort_order"); v != "" {
		input.SortOrder = v
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			sendError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		input.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			sendError(w, "offset must be an integer", http.StatusBadRequest)
			return
		}
		input.Offset = n
	}
	if v := q.Get("due_date_start"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			sendError(w, "due_date_start must be an ISO date", http.StatusBadRequest)
			return
		}
		input.DueDateStart = &d
	}
	if v := q.Get("due_date_end"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			sendError(w, "due_date_end must be an ISO date", http.StatusBadRequest)
			return
		}
		input.DueDateEnd = &d
	}

	tasks, total, err := h.Service.List(r.Context(), input)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, map[string]any{"tasks": tasks, "total_count": total}, http.StatusOK)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var input struct {
		Title         string   `json:"title"`
		Assignee      *string  `json:"assignee"`
		DueDate       *string  `json:"due_date"`
		Description   *string  `json:"description"`
		Priority      *string  `json:"priority"`
		Labels        []string `json:"labels"`
		EstimatedTime *float64 `json:"estimated_time"`
		Status        string   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	create := service.CreateTaskInput{
		Title:         input.Title,
		Assignee:      input.Assignee,
		Description:   input.Description,
		Priority:      input.Priority,
		Labels:        input.Labels,
		EstimatedTime: input.EstimatedTime,
		Status:        input.Status,
	}
	if input.DueDate != nil {
		d, err := time.Parse(dateLayout, *input.DueDate)
		if err != nil {
			sendError(w, "due_date must be an ISO date", http.StatusBadRequest)
			return
		}
		create.DueDate = &d
	}

	task, err := h.Service.Create(r.Context(), create)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	h.Board.Invalidate()
	w.Header().Set("Location", "/api/tasks/"+task.ID)
	sendJSON(w, task, http.StatusCreated)
}

/*
routes:
- GET /api/tasks/{id},
- PUT/PATCH /api/tasks/{id},
- DELETE /api/tasks/{id}?soft_delete=bool
*/
func (h *Handler) HandleTaskByID(w http.ResponseWriter, r *http.Request) {
	taskIDstr := r.URL.Path[len("/api/tasks/"):]
	if taskIDstr == "" {
		sendError(w, "task_id is required", http.StatusBadRequest)
		return
	}
	taskID, err := uuid.Parse(taskIDstr)
	if err != nil {
		// malformed ids are a validation failure, not a missing resource
		sendError(w, "task_id must be a valid uuid", http.StatusUnprocessableEntity)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getTaskByID(w, r, taskID)
	case http.MethodPut, http.MethodPatch:
		h.updateTaskByID(w, r, taskID)
	case http.MethodDelete:
		h.deleteTaskByID(w, r, taskID)
	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getTaskByID(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	task, err := h.Service.GetByID(r.Context(), taskID)
	if err != nil {
		sendError(w, "Failed to fetch task", http.StatusInternalServerError)
		return
	}
	if task == nil {
		sendError(w, "Task not found", http.StatusNotFound)
		return
	}
	sendJSON(w, task, http.StatusOK)
}

func (h *Handler) updateTaskByID(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var input struct {
		Title                service.Optional[string]   `json:"title"`
		Assignee             service.Optional[string]   `json:"assignee"`
		DueDate              service.Optional[string]   `json:"due_date"`
		Description          service.Optional[string]   `json:"description"`
		Priority             service.Optional[string]   `json:"priority"`
		Labels               service.Optional[[]string] `json:"labels"`
		EstimatedTime        service.Optional[float64]  `json:"estimated_time"`
		Status               service.Optional[string]   `json:"status"`
		ExpectedLastModified *string                    `json:"expected_last_modified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	update := service.UpdateTaskInput{
		Title:         input.Title,
		Assignee:      input.Assignee,
		Description:   input.Description,
		Priority:      input.Priority,
		Labels:        input.Labels,
		EstimatedTime: input.EstimatedTime,
		Status:        input.Status,
	}
	if input.DueDate.Set {
		if input.DueDate.Null {
			update.DueDate = service.Null[time.Time]()
		} else {
			d, err := time.Parse(dateLayout, input.DueDate.Value)
			if err != nil {
				sendError(w, "due_date must be an ISO date", http.StatusBadRequest)
				return
			}
			update.DueDate = service.Some(d)
		}
	}
	if input.ExpectedLastModified != nil {
		t, err := time.Parse(time.RFC3339Nano, *input.ExpectedLastModified)
		if err != nil {
			sendError(w, "expected_last_modified must be an ISO datetime", http.StatusBadRequest)
			return
		}
		update.ExpectedLastModified = &t
	}

	task, err := h.Service.Update(r.Context(), taskID, update)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	h.Board.Invalidate()
	sendJSON(w, task, http.StatusOK)
}

func (h *Handler) deleteTaskByID(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	soft := true
	if v := r.URL.Query().Get("soft_delete"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			sendError(w, "soft_delete must be a boolean", http.StatusBadRequest)
			return
		}
		soft = parsed
	}

	result, err := h.Service.Delete(r.Context(), taskID, soft)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	h.Board.Invalidate()
	sendJSON(w, result, http.StatusOK)
}
