// Package pipeline runs one conversational turn: translate and caption the
// input, merge the two with conversation history, extract mood keywords,
// query the catalog and persist the turn.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daeunpk/wink/internal/history"
	"github.com/daeunpk/wink/internal/models"
	"github.com/daeunpk/wink/internal/session"
	"github.com/daeunpk/wink/internal/textnorm"
)

// ErrRejected is returned when a turn carries no usable text or image signal.
// Nothing is written for a rejected turn.
var ErrRejected = errors.New("turn rejected: no text or image signal")

// Gateway is the model access the pipeline needs.
type Gateway interface {
	Translate(ctx context.Context, sourceText string) (string, error)
	Caption(ctx context.Context, imagePath string) (string, error)
	Generate(ctx context.Context, system, prompt string, asJSON bool) (string, error)
}

// Retriever ranks catalog items for a keyword set.
type Retriever interface {
	Query(ctx context.Context, keywords []string, topK int) ([]models.RankedItem, error)
}

// Store is the session persistence the pipeline needs.
type Store interface {
	Load(name string) (*models.Session, error)
	AppendTurn(sess *models.Session, turn models.Turn) error
	Update(name string, fn func(*models.Session) error) (*models.Session, error)
	Archive(name string) (string, error)
}

// Embedder produces keyword embeddings for the backfill job.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// State is a pipeline stage.
type State string

const (
	StateStart           State = "start"
	StateTranslate       State = "translate"
	StateCaption         State = "caption"
	StateMerge           State = "merge"
	StateExtractKeywords State = "extract_keywords"
	StateRetrieve        State = "retrieve"
	StateTopic           State = "topic"
	StatePersist         State = "persist"
	StateDone            State = "done"
	StateRejected        State = "rejected"
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusDone     Status = "done"
	StatusRejected Status = "rejected"
)

// Input is one user submission. At least one field must be set.
type Input struct {
	KoreanText string
	ImagePath  string
}

// Result describes a finished run.
type Result struct {
	RunID         string      `json:"run_id" yaml:"run_id"`
	Session       string      `json:"session" yaml:"session"`
	Status        Status      `json:"status" yaml:"status"`
	TurnIndex     int         `json:"turn_index" yaml:"turn_index"`
	Turn          models.Turn `json:"turn" yaml:"turn"`
	KeywordSource string      `json:"keyword_source,omitempty" yaml:"keyword_source,omitempty"`
	Topic         string      `json:"topic,omitempty" yaml:"topic,omitempty"`
	States        []State     `json:"states" yaml:"states"`
	Warnings      []string    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// StepResult carries a step's output, or the zero value and the error that
// caused the step to degrade.
type StepResult[T any] struct {
	Output T
	Err    error
}

// Config tunes a pipeline.
type Config struct {
	SessionName  string
	KeywordCount int
	TopK         int
	Denylist     []string
	// Topic enables naming a session from its first turn.
	Topic bool
}

// Orchestrator runs turns against one session. Runs are serialised.
type Orchestrator struct {
	gateway   Gateway
	store     Store
	retriever Retriever
	embedder  Embedder
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetriever enables the retrieve step. Without it turns carry no
// recommendations.
func WithRetriever(r Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithEmbedder enables BackfillEmbeddings.
func WithEmbedder(e Embedder) Option {
	return func(o *Orchestrator) { o.embedder = e }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an Orchestrator.
func New(gateway Gateway, store Store, cfg Config, opts ...Option) *Orchestrator {
	if cfg.SessionName == "" {
		cfg.SessionName = session.DefaultName
	}
	if cfg.KeywordCount <= 0 {
		cfg.KeywordCount = 5
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Denylist == nil {
		cfg.Denylist = textnorm.DefaultDenylist
	}
	o := &Orchestrator{
		gateway: gateway,
		store:   store,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SessionName returns the session this orchestrator writes to.
func (o *Orchestrator) SessionName() string { return o.cfg.SessionName }

// Archive moves the active session aside so the next turn starts a new
// conversation. A turn in progress finishes first.
func (o *Orchestrator) Archive() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Archive(o.cfg.SessionName)
}

// Run executes one turn. Model failures degrade the affected step to an
// empty value and are listed in Result.Warnings. A turn with no signal
// returns ErrRejected and writes nothing. If the turn was built but could
// not be written, the result is returned together with a
// *session.StorageWriteError.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Session: o.cfg.SessionName,
		States:  []State{StateStart},
	}
	logger := o.logger.With("run_id", res.RunID, "session", o.cfg.SessionName)

	in.KoreanText = strings.TrimSpace(in.KoreanText)
	in.ImagePath = strings.TrimSpace(in.ImagePath)
	if in.KoreanText == "" && in.ImagePath == "" {
		res.reject()
		logger.Info("Turn rejected", "reason", "empty input")
		return res, ErrRejected
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	sess, err := o.store.Load(o.cfg.SessionName)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	hist := history.Build(sess)

	var english, caption string
	if in.KoreanText != "" {
		english = runStep(ctx, res, logger, StateTranslate, func(ctx context.Context) (string, error) {
			return o.gateway.Translate(ctx, in.KoreanText)
		}).Output
	}
	if in.ImagePath != "" {
		caption = runStep(ctx, res, logger, StateCaption, func(ctx context.Context) (string, error) {
			return o.gateway.Caption(ctx, in.ImagePath)
		}).Output
	}
	if english == "" && caption == "" {
		res.reject()
		logger.Info("Turn rejected", "reason", "no usable translation or caption", "warnings", len(res.Warnings))
		return res, ErrRejected
	}

	merged := runStep(ctx, res, logger, StateMerge, func(ctx context.Context) (string, error) {
		raw, err := o.gateway.Generate(ctx, mergeSystem, mergePrompt(hist, english, caption), false)
		if err != nil {
			return "", err
		}
		return textnorm.ExtractSentence(raw), nil
	}).Output

	keywords := runStep(ctx, res, logger, StateExtractKeywords, func(ctx context.Context) ([]string, error) {
		return o.extractKeywords(ctx, res, logger, merged)
	}).Output

	var recs []models.RankedItem
	if o.retriever != nil && len(keywords) > 0 {
		recs = runStep(ctx, res, logger, StateRetrieve, func(ctx context.Context) ([]models.RankedItem, error) {
			return o.retriever.Query(ctx, keywords, o.cfg.TopK)
		}).Output
	}

	if o.cfg.Topic && sess.Topic == "" && sess.TurnCount() == 0 {
		opener := firstNonEmpty(in.KoreanText, merged)
		topic := runStep(ctx, res, logger, StateTopic, func(ctx context.Context) (string, error) {
			raw, err := o.gateway.Generate(ctx, topicSystem, topicPrompt(opener), false)
			if err != nil {
				return "", err
			}
			return cleanTopic(textnorm.ExtractSentence(raw)), nil
		}).Output
		if topic == "" {
			topic = FallbackTopic(in.KoreanText)
		}
		res.Topic = topic
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("Turn abandoned before persist", "err", err)
		return nil, err
	}

	res.Turn = models.Turn{
		Timestamp:       o.now(),
		KoreanText:      in.KoreanText,
		ImagePath:       in.ImagePath,
		EnglishText:     english,
		EnglishCaption:  caption,
		MergedSentence:  merged,
		Keywords:        keywords,
		Recommendations: recs,
	}

	// The session is reloaded under the store lock, so an archive that
	// landed mid-turn is respected and the turn opens the new session.
	res.States = append(res.States, StatePersist)
	saved, err := o.store.Update(o.cfg.SessionName, func(cur *models.Session) error {
		if cur.TurnCount() != sess.TurnCount() || (sess.TurnCount() > 0 && !cur.StartedAt.Equal(sess.StartedAt)) {
			logger.Warn("Session changed during turn, appending to the current session", "turns_before", sess.TurnCount(), "turns_now", cur.TurnCount())
		}
		if err := o.store.AppendTurn(cur, res.Turn); err != nil {
			return err
		}
		if res.Topic != "" && cur.Topic == "" {
			cur.Topic = res.Topic
		}
		return nil
	})
	if saved == nil {
		return nil, err
	}
	res.TurnIndex = saved.TurnCount() - 1
	res.Status = StatusDone
	res.States = append(res.States, StateDone)
	if err != nil {
		logger.Error("Failed to persist turn", "err", err)
		return res, err
	}
	logger.Info("Turn complete", "turn", res.TurnIndex, "keywords", keywords, "recommendations", len(recs), "warnings", len(res.Warnings))
	return res, nil
}

func (o *Orchestrator) extractKeywords(ctx context.Context, res *Result, logger *slog.Logger, merged string) ([]string, error) {
	if merged == "" {
		return nil, errors.New("no merged sentence to extract keywords from")
	}
	raw, err := o.gateway.Generate(ctx, keywordSystem, keywordPrompt(o.cfg.KeywordCount, merged), true)
	if err != nil {
		return nil, err
	}
	parse := textnorm.ParseKeywords(raw)
	res.KeywordSource = parse.Kind.String()
	if parse.Kind == textnorm.Fallback {
		logger.Warn("Keyword output was not valid JSON, using fallback cleanup", "err", parse.Err)
	}
	keywords := textnorm.FilterKeywords(parse.Tokens, o.cfg.KeywordCount, o.cfg.Denylist)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: %q", textnorm.ErrMalformedOutput, truncate(raw, 120))
	}
	return keywords, nil
}

func runStep[T any](ctx context.Context, res *Result, logger *slog.Logger, state State, fn func(context.Context) (T, error)) StepResult[T] {
	res.States = append(res.States, state)
	start := time.Now()
	out, err := fn(ctx)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", state, err))
		logger.Warn("Pipeline step degraded", "step", string(state), "duration", time.Since(start), "err", err)
		var zero T
		return StepResult[T]{Output: zero, Err: err}
	}
	logger.Debug("Pipeline step finished", "step", string(state), "duration", time.Since(start))
	return StepResult[T]{Output: out}
}

func (r *Result) reject() {
	r.Status = StatusRejected
	r.States = append(r.States, StateRejected)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
