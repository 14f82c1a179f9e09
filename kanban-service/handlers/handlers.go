package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chepyr/go-kanban-board/kanban-service/service"
	"github.com/chepyr/go-kanban-board/kanban-service/state"
)

type Handler struct {
	Service      *service.TaskService
	ImportExport *service.ImportExportService
	Board        *state.BoardCache
	RateLimiter  *RateLimiter
}

// RateLimiter guards the expensive bulk endpoints (import/export/restore)
// against hammering from a single client.
type RateLimiter struct {
	attempts map[string]int
	limit    int
	mutex    sync.Mutex
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		attempts: make(map[string]int),
		limit:    limit,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	count, exists := rl.attempts[ip]
	if !exists {
		rl.attempts[ip] = 1
		return true
	}
	if count >= rl.limit {
		return false
	}
	rl.attempts[ip]++
	return true
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(rl.window)
		rl.mutex.Lock()
		rl.attempts = make(map[string]int)
		rl.mutex.Unlock()
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func sendError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sendJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(strings.ToLower(ct), "application/json")
}

// sendServiceError maps service errors onto HTTP codes: missing rows to 404,
// state conflicts to 409, value violations to 422, anything else to 400.
func sendServiceError(w http.ResponseWriter, err error) {
	var (
		notFound   *service.TaskNotFoundError
		concurrent *service.OptimisticConcurrencyError
		transition *service.InvalidStatusTransitionError
		badStatus  *service.InvalidStatusError
		badPrio    *service.InvalidPriorityError
		pastDue    *service.PastDueDateError
	)
	code := http.StatusBadRequest
	switch {
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.As(err, &concurrent), errors.As(err, &transition):
		code = http.StatusConflict
	case errors.As(err, &badStatus), errors.As(err, &badPrio), errors.As(err, &pastDue):
		code = http.StatusUnprocessableEntity
	}
	sendError(w, err.Error(), code)
}
