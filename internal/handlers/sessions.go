package handlers

import (
	"errors"
	"net/http"

	"github.com/daeunpk/wink/internal/session"
)

// HandleSession returns the active session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, err := h.sessions.Load(h.runner.SessionName())
	if err != nil {
		h.writeError(w, "Failed to load session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

// HandleArchive archives the active session so the next turn starts fresh.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name, err := h.runner.Archive()
	if errors.Is(err, session.ErrNoSession) {
		h.writeError(w, "No active session", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, "Failed to archive session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"archived_as": name})
}
