// Package images stores turn images locally so they can be captioned.
package images

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotImage is returned when content does not sniff as an image.
var ErrNotImage = errors.New("not an image")

// DefaultMaxBytes caps downloads.
const DefaultMaxBytes = 10 << 20

// Save writes data into dir under its content hash and returns the path.
// The extension comes from filename, or from the sniffed type when filename
// has none. Saving the same bytes twice yields the same path.
func Save(dir string, data []byte, filename string) (string, error) {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mtype.String())
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	sum := md5.Sum(data)
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = mtype.Extension()
	}
	out := filepath.Join(dir, hex.EncodeToString(sum[:])+ext)
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	slog.Debug("Image saved", "path", out, "type", mtype.String(), "bytes", len(data))
	return out, nil
}

// IsRemote reports whether ref is an http(s) URL rather than a local path.
func IsRemote(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetcher downloads remote images
type Fetcher struct {
	HTTPClient *http.Client
	MaxBytes   int64
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		MaxBytes: DefaultMaxBytes,
	}
}

// Resolve returns ref unchanged when it is a local path and downloads it
// into dir when it is a URL.
func (f *Fetcher) Resolve(ctx context.Context, ref, dir string) (string, error) {
	if ref == "" || !IsRemote(ref) {
		return ref, nil
	}
	return f.Fetch(ctx, ref, dir)
}

// Fetch downloads the image at rawURL into dir and returns the saved path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid image URL: %w", err)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("image larger than %d bytes", limit)
	}

	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	saved, err := Save(dir, data, name)
	if err != nil {
		return "", err
	}
	slog.Info("Downloaded image", "url", rawURL, "path", saved)
	return saved, nil
}
