// Package session persists conversations as JSON documents, one file per
// session, and keeps their turn sequences aligned.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/daeunpk/wink/internal/models"
)

// DefaultName is the session a fresh install reads and writes.
const DefaultName = "active_session"

var (
	// ErrCorrupted is reported when a session file cannot be parsed. Load
	// recovers from it by starting a new session.
	ErrCorrupted = errors.New("session file corrupted")
	// ErrValidation rejects a turn that is missing required fields.
	ErrValidation = errors.New("invalid turn")
	// ErrNoSession is returned by Archive when nothing is active.
	ErrNoSession = errors.New("no active session")

	errAbsent = errors.New("absent")
)

// StorageWriteError wraps a failure to write a session to disk.
type StorageWriteError struct {
	Path string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("failed to write session %s: %v", e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// Store reads and writes sessions under a directory.
type Store struct {
	dir      string
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate
	mu       sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for repair and corruption warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:      dir,
		logger:   slog.Default(),
		now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory sessions are stored in.
func (s *Store) Dir() string { return s.dir }

// Path returns the file backing the named session.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Exists reports whether the named session has been persisted.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Load returns the named session. A missing file yields a new empty session;
// an unparseable one is logged and replaced by a new session. Sequences that
// are absent or shorter than the others are padded so all seven align.
func (s *Store) Load(name string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(name)
}

func (s *Store) load(name string) (*models.Session, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.fresh(name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", path, err)
	}

	sess, missing, err := decode(data)
	if err != nil {
		s.logger.Warn("Session file unreadable, starting a new session", "path", path, "err", err)
		return s.fresh(name), nil
	}
	sess.Name = name
	if sess.StartedAt.IsZero() {
		sess.StartedAt = s.now()
	}
	if repaired := Repair(sess); len(repaired) > 0 || len(missing) > 0 {
		s.logger.Info("Repaired session sequences", "path", path, "missing", missing, "padded", repaired)
	}
	return sess, nil
}

func (s *Store) fresh(name string) *models.Session {
	sess := &models.Session{Name: name, StartedAt: s.now()}
	Repair(sess)
	return sess
}

// Repair makes every turn sequence non-nil and as long as the longest one,
// filling gaps with empty values. It returns the names of the sequences it
// extended. Calling it on an aligned session changes nothing.
func Repair(sess *models.Session) []string {
	n := max(len(sess.KoreanText), len(sess.ImagePath), len(sess.EnglishText),
		len(sess.EnglishCaption), len(sess.MergedSentence), len(sess.EnglishKeywords),
		len(sess.Recommendations))

	var padded []string
	pad := func(key string, cur int, grow func()) {
		if cur < n {
			padded = append(padded, key)
		}
		grow()
	}
	pad(keyKorean, len(sess.KoreanText), func() { sess.KoreanText = padTo(sess.KoreanText, n) })
	pad(keyImage, len(sess.ImagePath), func() { sess.ImagePath = padTo(sess.ImagePath, n) })
	pad(keyEnglish, len(sess.EnglishText), func() { sess.EnglishText = padTo(sess.EnglishText, n) })
	pad(keyCaption, len(sess.EnglishCaption), func() { sess.EnglishCaption = padTo(sess.EnglishCaption, n) })
	pad(keyMerged, len(sess.MergedSentence), func() { sess.MergedSentence = padTo(sess.MergedSentence, n) })
	pad(keyKeywords, len(sess.EnglishKeywords), func() { sess.EnglishKeywords = padTo(sess.EnglishKeywords, n) })
	pad(keyRecs, len(sess.Recommendations), func() { sess.Recommendations = padTo(sess.Recommendations, n) })

	for i := range sess.EnglishKeywords {
		if sess.EnglishKeywords[i] == nil {
			sess.EnglishKeywords[i] = []string{}
		}
	}
	for i := range sess.Recommendations {
		if sess.Recommendations[i] == nil {
			sess.Recommendations[i] = []models.RankedItem{}
		}
	}
	return padded
}

func padTo[T any](s []T, n int) []T {
	if s == nil {
		s = make([]T, 0, n)
	}
	var zero T
	for len(s) < n {
		s = append(s, zero)
	}
	return s
}

// AppendTurn validates turn and adds one entry to each of the seven
// sequences. On error sess is left untouched.
func (s *Store) AppendTurn(sess *models.Session, turn models.Turn) error {
	if err := s.validate.Struct(turn); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	Repair(sess)

	keywords := turn.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	recs := turn.Recommendations
	if recs == nil {
		recs = []models.RankedItem{}
	}
	sess.KoreanText = append(sess.KoreanText, turn.KoreanText)
	sess.ImagePath = append(sess.ImagePath, turn.ImagePath)
	sess.EnglishText = append(sess.EnglishText, turn.EnglishText)
	sess.EnglishCaption = append(sess.EnglishCaption, turn.EnglishCaption)
	sess.MergedSentence = append(sess.MergedSentence, turn.MergedSentence)
	sess.EnglishKeywords = append(sess.EnglishKeywords, keywords)
	sess.Recommendations = append(sess.Recommendations, recs)
	return nil
}

// Persist writes sess to its file. The write goes to a temporary file that
// is renamed into place, so readers never observe a partial document.
func (s *Store) Persist(sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(sess)
}

func (s *Store) persist(sess *models.Session) error {
	path := s.Path(sess.Name)
	data, err := encode(sess)
	if err != nil {
		return &StorageWriteError{Path: path, Err: err}
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &StorageWriteError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, "."+sess.Name+"-*.tmp")
	if err != nil {
		return &StorageWriteError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StorageWriteError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &StorageWriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &StorageWriteError{Path: path, Err: err}
	}
	return nil
}

// Update loads the named session, applies fn and persists the result while
// holding the store lock. Nothing is written if fn returns an error.
func (s *Store) Update(name string, fn func(*models.Session) error) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(name)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.persist(sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// Archive moves the named session to a timestamped file so the next Load
// starts a new conversation. It returns the archived session's name.
func (s *Store) Archive(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.Path(name)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoSession
		}
		return "", err
	}

	base := name + "_" + s.now().Format("20060102_150405")
	archived := base
	for i := 1; ; i++ {
		if _, err := os.Stat(s.Path(archived)); errors.Is(err, fs.ErrNotExist) {
			break
		}
		archived = fmt.Sprintf("%s_%d", base, i)
	}

	if err := os.Rename(src, s.Path(archived)); err != nil {
		return "", fmt.Errorf("failed to archive session: %w", err)
	}
	s.logger.Info("Session archived", "session", name, "archived_as", archived)
	return archived, nil
}
