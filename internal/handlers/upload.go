package handlers

import (
	"fmt"
	"io"

	"github.com/daeunpk/wink/internal/images"
)

type badUploadError struct{ msg string }

func (e *badUploadError) Error() string { return e.msg }

// saveUpload stores an uploaded image under its content hash and returns the
// saved path.
func (h *Handler) saveUpload(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, h.maxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file contents: %w", err)
	}
	if int64(len(data)) > h.maxUploadBytes {
		return "", &badUploadError{msg: fmt.Sprintf("File too large (max %dMB)", h.maxUploadBytes/1024/1024)}
	}
	return images.Save(h.uploadsDir, data, filename)
}
