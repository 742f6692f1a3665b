// Package catalog reads the music catalog the retrieval index is built from.
package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/daeunpk/wink/internal/models"
)

// Record is one catalog row as exported from the Jamendo metadata dump.
type Record struct {
	TrackID   string `json:"TRACK_ID" parquet:"TRACK_ID"`
	Path      string `json:"PATH" parquet:"PATH"`
	GenreTags string `json:"genre_tags" parquet:"genre_tags"`
	MoodTags  string `json:"mood_tags" parquet:"mood_tags"`
}

// Item converts r into a catalog item. The embedding text pairs genre and
// mood so that mood keywords land near matching tracks.
func (r Record) Item() models.CatalogItem {
	return models.CatalogItem{
		ID:            r.TrackID,
		EmbeddingText: fmt.Sprintf("Genre: %s. Mood: %s", strings.TrimSpace(r.GenreTags), strings.TrimSpace(r.MoodTags)),
		Metadata: map[string]string{
			"track_id":   r.TrackID,
			"path":       r.Path,
			"genre_tags": r.GenreTags,
			"mood_tags":  r.MoodTags,
		},
	}
}

// Loader handles loading of catalog files
type Loader struct {
	path string
}

// NewLoader creates a new catalog loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads every record from a JSONL or Parquet file and converts them to
// catalog items. Rows without a track ID are skipped.
func (l *Loader) Load() ([]models.CatalogItem, error) {
	var (
		records []Record
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(l.path)); ext {
	case ".parquet":
		records, err = l.loadParquet()
	case ".jsonl", ".json":
		records, err = l.loadJSONL()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
	if err != nil {
		return nil, err
	}

	items := make([]models.CatalogItem, 0, len(records))
	skipped := 0
	for _, r := range records {
		if strings.TrimSpace(r.TrackID) == "" {
			skipped++
			continue
		}
		items = append(items, r.Item())
	}
	if skipped > 0 {
		slog.Warn("Skipped catalog rows without a track ID", "path", l.path, "skipped", skipped)
	}
	return items, nil
}

func (l *Loader) loadJSONL() ([]Record, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer file.Close()
	return decodeJSONL(file)
}

func decodeJSONL(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}
	slog.Debug("Finished reading JSONL catalog", "records", len(records), "lines", lineNum)
	return records, nil
}

func (l *Loader) loadParquet() ([]Record, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet catalog opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[Record](pf)
	defer reader.Close()

	var records []Record
	rows := make([]Record, 128)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return records, nil
}
