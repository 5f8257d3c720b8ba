// Package generate validates a paper request, submits it to the backend and
// reports cosmetic progress while the backend works.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pavelanni/paperdash/internal/api"
	"github.com/pavelanni/paperdash/internal/model"
)

// Message ids for validation failures. They double as go-i18n message ids.
const (
	MsgSubjectRequired   = "SubjectRequired"
	MsgUnitTopicRequired = "UnitTopicRequired"
	MsgDistributionSum   = "DistributionInvalid"
)

// ValidationError means the request was rejected locally and nothing was sent.
type ValidationError struct {
	MessageID string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid request (%s): %v", e.MessageID, e.Err)
	}
	return "invalid request: " + e.MessageID
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Submitter posts a payload and returns the new paper id.
// *api.Client satisfies it.
type Submitter interface {
	Generate(ctx context.Context, payload any) (string, error)
	DownloadURL(paperID string) string
}

// State is what the user has chosen at the moment they press generate.
type State struct {
	Selection model.Selection
	// Unit and topic display names, used by the tenths payload which keys
	// topics by unit name.
	UnitName           string
	TopicName          string
	Engine             model.Engine
	Distribution       model.Distribution
	MarksPerDifficulty map[model.Difficulty]int
	TotalMarks         int
}

// ProgressFunc receives progress percentages in [0,100].
type ProgressFunc func(percent int)

// Config controls validation and the wire format.
type Config struct {
	Format           model.PayloadFormat
	RequireUnitTopic bool
	// TickInterval is the progress ticker period; 0 means 500ms.
	TickInterval time.Duration
}

// Result locates a freshly generated paper.
type Result struct {
	PaperID       string
	DetailPath    string
	AnalyticsPath string
	DownloadURL   string
}

// Generator runs one generation at a time per call; it holds no state
// between calls other than its configuration.
type Generator struct {
	api      Submitter
	cfg      Config
	progress ProgressFunc
	rng      *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(g *Generator) { g.progress = fn }
}

// WithRand replaces the progress jitter source.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// New creates a generator.
func New(sub Submitter, cfg Config, opts ...Option) *Generator {
	if cfg.Format == "" {
		cfg.Format = model.PayloadTenths
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	g := &Generator{
		api:      sub,
		cfg:      cfg,
		progress: func(int) {},
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Request validates st and builds the request that would be sent.
func (g *Generator) Request(st State) (model.GenerationRequest, error) {
	sel := st.Selection
	if sel.Subject == 0 {
		return model.GenerationRequest{}, &ValidationError{MessageID: MsgSubjectRequired}
	}
	if g.cfg.RequireUnitTopic && (sel.Unit == 0 || sel.Topic == 0) {
		return model.GenerationRequest{}, &ValidationError{MessageID: MsgUnitTopicRequired}
	}
	if err := st.Distribution.Validate(); err != nil {
		return model.GenerationRequest{}, &ValidationError{MessageID: MsgDistributionSum, Err: err}
	}

	engine := st.Engine
	if engine == "" {
		engine = model.EngineLLM
	}
	req := model.GenerationRequest{
		SubjectID:          sel.Subject,
		UnitID:             sel.Unit,
		TopicID:            sel.Topic,
		Engine:             engine,
		Distribution:       st.Distribution,
		MarksPerDifficulty: st.MarksPerDifficulty,
		TotalMarks:         st.TotalMarks,
	}
	if sel.Unit != 0 && st.UnitName != "" {
		topics := []string{}
		if sel.Topic != 0 && st.TopicName != "" {
			topics = append(topics, st.TopicName)
		}
		req.UnitTopics = map[string][]string{st.UnitName: topics}
	}
	return req, nil
}

// Generate validates st, submits it and waits for the paper id. Validation
// failures return *ValidationError before any network call. Backend
// failures are returned as is and never retried.
func (g *Generator) Generate(ctx context.Context, st State) (*Result, error) {
	req, err := g.Request(st)
	if err != nil {
		return nil, err
	}
	payload, err := Payload(g.cfg.Format, req)
	if err != nil {
		return nil, err
	}

	stop := g.startProgress()
	slog.Info("generating paper", "subject_id", req.SubjectID, "engine", req.Engine, "format", g.cfg.Format)
	id, err := g.api.Generate(ctx, payload)
	stop()
	if err != nil {
		g.progress(0)
		slog.Error("generation failed", "subject_id", req.SubjectID, "error", err)
		return nil, fmt.Errorf("generate paper: %w", err)
	}
	g.progress(100)

	return &Result{
		PaperID:       id,
		DetailPath:    "/papers/" + id,
		AnalyticsPath: "/papers/" + id + "/analytics",
		DownloadURL:   g.api.DownloadURL(id),
	}, nil
}

// startProgress ticks pseudo-random increments capped at 90 until the
// returned stop function is called. stop waits for the ticker goroutine.
func (g *Generator) startProgress() (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(g.cfg.TickInterval)
		defer t.Stop()
		pct := 0
		g.progress(pct)
		for {
			select {
			case <-done:
				return
			case <-t.C:
				pct = min(pct+5+g.rng.IntN(11), 90)
				g.progress(pct)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// IsValidation reports whether err is a local validation failure and
// returns its message id.
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.MessageID, true
	}
	return "", false
}

// FailureMessage returns the text to show for a failed generation: the
// backend's own message when it sent one, else "".
func FailureMessage(err error) string {
	return api.Message(err)
}
