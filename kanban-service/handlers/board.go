package handlers

import "net/http"

// HandleBoard serves GET /api/board: active tasks grouped by status, from the
// read-through board cache.
func (h *Handler) HandleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snapshot, err := h.Board.Snapshot(r.Context())
	if err != nil {
		sendError(w, "Failed to load board", http.StatusInternalServerError)
		return
	}
	sendJSON(w, snapshot, http.StatusOK)
}
