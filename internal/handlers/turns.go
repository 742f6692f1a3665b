package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/daeunpk/wink/internal/images"
	"github.com/daeunpk/wink/internal/pipeline"
	"github.com/daeunpk/wink/internal/session"
)

// HandleTurns accepts a turn as JSON ({"korean_text": "...", "image_url":
// "..."}) or as a multipart form with a korean_text field and an optional
// image file.
func (h *Handler) HandleTurns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in pipeline.Input
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var request struct {
			KoreanText string `json:"korean_text"`
			ImageURL   string `json:"image_url"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		in.KoreanText = request.KoreanText
		if request.ImageURL != "" {
			if !images.IsRemote(request.ImageURL) {
				h.writeError(w, "image_url must be an http(s) URL", http.StatusBadRequest)
				return
			}
			path, err := h.fetcher.Fetch(r.Context(), request.ImageURL, h.uploadsDir)
			if err != nil {
				h.writeError(w, "Failed to fetch image: "+err.Error(), http.StatusBadRequest)
				return
			}
			in.ImagePath = path
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			h.writeError(w, "Invalid form: "+err.Error(), http.StatusBadRequest)
			return
		}
		in.KoreanText = r.FormValue("korean_text")

		file, header, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			h.writeError(w, "Failed to read image: "+err.Error(), http.StatusBadRequest)
			return
		default:
			defer file.Close()
			path, err := h.saveUpload(file, header.Filename)
			if err != nil {
				var bad *badUploadError
				if errors.As(err, &bad) || errors.Is(err, images.ErrNotImage) {
					h.writeError(w, err.Error(), http.StatusBadRequest)
					return
				}
				h.writeError(w, "Failed to save image: "+err.Error(), http.StatusInternalServerError)
				return
			}
			in.ImagePath = path
		}
	}

	res, err := h.runner.Run(r.Context(), in)
	var werr *session.StorageWriteError
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, pipeline.ErrRejected):
		h.writeJSON(w, http.StatusUnprocessableEntity, res)
	case errors.As(err, &werr) && res != nil:
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  werr.Error(),
			"result": res,
		})
	case errors.Is(err, session.ErrValidation):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.writeError(w, "Turn failed: "+err.Error(), http.StatusInternalServerError)
	}
}
