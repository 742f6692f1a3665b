package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/daeunpk/wink/internal/images"
	"github.com/daeunpk/wink/internal/models"
	"github.com/daeunpk/wink/internal/pipeline"
)

// TurnRunner runs conversational turns against one session. Archive must
// not interleave with a running turn.
type TurnRunner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
	Archive() (string, error)
	SessionName() string
}

// SessionStore reads sessions for the HTTP API.
type SessionStore interface {
	Load(name string) (*models.Session, error)
}

type Handler struct {
	runner         TurnRunner
	sessions       SessionStore
	fetcher        *images.Fetcher
	uploadsDir     string
	maxUploadBytes int64
}

func New(runner TurnRunner, sessions SessionStore, uploadsDir string, maxUploadMB int) *Handler {
	if uploadsDir == "" {
		uploadsDir = "uploads"
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	fetcher := images.NewFetcher()
	fetcher.MaxBytes = int64(maxUploadMB) * 1024 * 1024
	return &Handler{
		runner:         runner,
		fetcher:        fetcher,
		sessions:       sessions,
		uploadsDir:     uploadsDir,
		maxUploadBytes: int64(maxUploadMB) * 1024 * 1024,
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Warn(message)
	}
	http.Error(w, message, code)
}
