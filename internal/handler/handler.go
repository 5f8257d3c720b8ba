package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/paperdash/internal/analytics"
	"github.com/pavelanni/paperdash/internal/api"
	"github.com/pavelanni/paperdash/internal/generate"
	"github.com/pavelanni/paperdash/internal/handler/views"
	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/paper"
	"github.com/pavelanni/paperdash/internal/selector"
	"github.com/pavelanni/paperdash/internal/session"
	"github.com/pavelanni/paperdash/internal/store"
)

const recentPapers = 5

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	api      *api.Client
	browsers *session.Browsers
	store    *store.Store
	config   model.DashboardConfig
}

// New creates a new Handler. c must not carry a token source of its own:
// every request uses the token of the browser that made it.
func New(c *api.Client, browsers *session.Browsers, s *store.Store, cfg model.DashboardConfig) (*Handler, error) {
	if c == nil || browsers == nil || s == nil {
		return nil, errors.New("handler needs an API client, browser sessions and a store")
	}
	if cfg.PayloadFormat == "" {
		cfg.PayloadFormat = model.PayloadTenths
	}
	if cfg.DefaultEngine == "" {
		cfg.DefaultEngine = model.EngineLLM
	}
	if cfg.TotalMarks <= 0 {
		cfg.TotalMarks = 100
	}
	return &Handler{api: c, browsers: browsers, store: s, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.handleLogout)
		r.Get("/", h.handleIndex)
		r.Get("/generate", h.handleGeneratePage)
		r.Post("/generate", h.handleGenerate)
		r.Get("/history", h.handleHistory)
		r.Get("/papers/{paperID}", h.handlePaper)
		r.Get("/papers/{paperID}/analytics", h.handlePaperAnalytics)
		r.Get("/papers/{paperID}/download", h.handleDownload)
		r.Get("/students", h.handleStudents)
		r.Post("/students/upload", h.handleUploadStudents)
		r.Get("/students/export", h.handleExportStudents)
		r.Get("/students/{studentID}", h.handleStudent)
	})
}

// BasePathMiddleware makes the configured URL prefix available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

// backendFailed deals with a failed backend call. A 401 sends the user to
// the login page and reports true; anything else is logged and turned into
// a notice.
func (h *Handler) backendFailed(w http.ResponseWriter, r *http.Request, err error, what string) (*views.Notice, bool) {
	if errors.Is(err, api.ErrUnauthorized) {
		h.sessionExpired(w, r)
		return nil, true
	}
	slog.Error("backend call failed", "call", what, "error", err)
	return errorNotice(r.Context(), err, "LoadFailed"), false
}

// errorNotice prefers the backend's own message over the generic one.
func errorNotice(ctx context.Context, err error, fallbackID string) *views.Notice {
	msg := api.Message(err)
	if msg == "" {
		msg = appI18n.T(ctx, fallbackID)
	}
	return &views.Notice{Kind: "error", Text: msg}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	var notice *views.Notice
	entries, err := h.api.History(r.Context())
	if err != nil {
		var done bool
		if notice, done = h.backendFailed(w, r, err, "history"); done {
			return
		}
	}
	if len(entries) > recentPapers {
		entries = entries[:recentPapers]
	}

	var fleet *model.FleetStats
	roster, err := h.studentService().Reload(r.Context())
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		h.sessionExpired(w, r)
		return
	case err != nil:
		slog.Warn("roster unavailable for dashboard", "error", err)
	default:
		fs := analytics.Fleet(roster.Rows)
		fleet = &fs
	}

	render(w, r, http.StatusOK, views.DashboardPage(entries, fleet, notice))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	engine, _ := model.ParseEngine(r.URL.Query().Get("engine"))

	data := views.HistoryData{Query: query, Engine: engine}
	entries, err := h.api.History(r.Context())
	if err != nil {
		var done bool
		if data.Notice, done = h.backendFailed(w, r, err, "history"); done {
			return
		}
	}
	data.Entries = paper.Filter(entries, query, engine)
	render(w, r, http.StatusOK, views.HistoryPage(data))
}

func (h *Handler) loadPaper(w http.ResponseWriter, r *http.Request, id string) (*model.PaperDetail, bool) {
	raw, err := h.api.Paper(r.Context(), id)
	if err != nil {
		notice, done := h.backendFailed(w, r, err, "paper")
		if !done {
			render(w, r, http.StatusBadGateway, views.MessagePage(appI18n.T(r.Context(), "ColPaper")+" "+id, *notice))
		}
		return nil, false
	}
	p, err := paper.Normalize(raw)
	if err != nil {
		slog.Error("unreadable paper payload", "paper_id", id, "error", err)
		render(w, r, http.StatusBadGateway, views.MessagePage(appI18n.T(r.Context(), "ColPaper")+" "+id,
			views.Notice{Kind: "error", Text: appI18n.T(r.Context(), "LoadFailed")}))
		return nil, false
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, true
}

func (h *Handler) handlePaper(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paperID")
	p, ok := h.loadPaper(w, r, id)
	if !ok {
		return
	}
	var notice *views.Notice
	if r.URL.Query().Get("generated") != "" {
		notice = &views.Notice{Kind: "success", Text: appI18n.Td(r.Context(), "GenerationSucceeded", map[string]any{"ID": id})}
	}
	render(w, r, http.StatusOK, views.PaperPage(p, notice))
}

func (h *Handler) handlePaperAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paperID")
	var notice *views.Notice

	a, err := h.api.PaperAnalytics(r.Context(), id)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			h.sessionExpired(w, r)
			return
		}
		slog.Warn("paper analytics unavailable, deriving from paper", "paper_id", id, "error", err)
		p, ok := h.loadPaper(w, r, id)
		if !ok {
			return
		}
		a = analytics.FromPaper(p)
		notice = &views.Notice{Kind: "info", Text: appI18n.T(r.Context(), "AnalyticsFromPaper")}
	}

	charts := []views.ChartView{
		{TitleID: "ChartDifficulty", Points: analytics.FormatRadialData(a.DifficultyDistribution)},
		{TitleID: "ChartBloom", Points: analytics.FormatRadialData(a.BloomTaxonomy)},
		{TitleID: "ChartTopics", Points: analytics.FormatRadialData(a.TopicCoverage)},
		{TitleID: "ChartMarks", Points: analytics.FormatRadialData(a.MarksAllocation)},
	}
	render(w, r, http.StatusOK, views.AnalyticsPage(id, charts, notice))
}

// handleDownload sends the browser to the backend's PDF URL; the file is
// never proxied.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paperID")
	http.Redirect(w, r, h.api.DownloadURL(id), http.StatusFound)
}

// generateForm is the cascade, engine and difficulty state carried in the
// query string (GET) or form body (POST).
type generateForm struct {
	selection    model.Selection
	engine       model.Engine
	distribution model.Distribution
	totalMarks   int
}

func (h *Handler) parseGenerateForm(r *http.Request) generateForm {
	prefs, err := h.store.GetPreferences()
	if err != nil {
		slog.Warn("failed to read preferences", "error", err)
	}

	f := generateForm{
		engine:       h.config.DefaultEngine,
		distribution: prefs.Distribution,
		totalMarks:   h.config.TotalMarks,
	}
	if prefs.Engine != "" {
		f.engine = prefs.Engine
	}
	for _, l := range model.Levels {
		id, _ := strconv.ParseInt(r.FormValue(l.String()), 10, 64)
		f.selection = f.selection.With(l, max(id, 0))
	}
	if e, err := model.ParseEngine(r.FormValue("engine")); err == nil {
		f.engine = e
	}
	if n, err := strconv.Atoi(r.FormValue("total_marks")); err == nil && n > 0 {
		f.totalMarks = n
	}

	if r.Form.Has(string(model.DifficultyEasy)) {
		submitted := map[model.Difficulty]int{}
		for _, d := range model.Difficulties {
			v, _ := strconv.Atoi(r.FormValue(string(d)))
			submitted[d] = v
		}
		f.distribution = model.Distribution{
			Easy:   submitted[model.DifficultyEasy],
			Medium: submitted[model.DifficultyMedium],
			Hard:   submitted[model.DifficultyHard],
		}
		// The adjusted field carries its new value; the other two still
		// hold the previous ones and are rebalanced around it.
		if adj := model.Difficulty(r.FormValue("adjust")); adj != "" {
			if err := f.distribution.Set(adj, submitted[adj]); err != nil {
				slog.Debug("ignoring adjustment", "dimension", adj, "error", err)
			}
		}
	}
	return f
}

// cascade replays the selection chain against the backend. Failed loads
// become notices; the chain stops at the first level it cannot restore.
func (h *Handler) cascade(ctx context.Context, sel model.Selection) (*selector.Selector, []views.Notice, error) {
	var notices []views.Notice
	s := selector.New(h.api, func(n selector.Notice) {
		label := appI18n.T(ctx, "Level"+n.Level.Label())
		notices = append(notices, views.Notice{
			Kind: "error",
			Text: appI18n.Td(ctx, "LoadOptionsFailed", map[string]any{"Level": label}),
		})
	})
	err := s.Restore(ctx, sel)
	if errors.Is(err, api.ErrUnauthorized) {
		return nil, nil, err
	}
	if err != nil {
		slog.Debug("selection partially restored", "error", err)
	}
	return s, notices, nil
}

func (h *Handler) generateData(s *selector.Selector, f generateForm, notices []views.Notice) views.GenerateData {
	d := views.GenerateData{
		Engine:       f.engine,
		Distribution: f.distribution,
		TotalMarks:   f.totalMarks,
		Notices:      notices,
	}
	sel := s.Selection()
	for _, l := range model.Levels {
		d.Levels = append(d.Levels, views.LevelView{
			Level:    l,
			Options:  s.Options(l),
			Selected: sel.Get(l),
			Enabled:  s.Enabled(l),
		})
	}
	return d
}

func (h *Handler) handleGeneratePage(w http.ResponseWriter, r *http.Request) {
	f := h.parseGenerateForm(r)
	s, notices, err := h.cascade(r.Context(), f.selection)
	if err != nil {
		h.sessionExpired(w, r)
		return
	}
	render(w, r, http.StatusOK, views.GeneratePage(h.generateData(s, f, notices)))
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := h.parseGenerateForm(r)
	s, notices, err := h.cascade(ctx, f.selection)
	if err != nil {
		h.sessionExpired(w, r)
		return
	}

	gen := generate.New(h.api, generate.Config{
		Format:           h.config.PayloadFormat,
		RequireUnitTopic: h.config.RequireUnitTopic,
	}, generate.WithProgress(func(p int) {
		slog.Debug("generation progress", "percent", p)
	}))
	res, err := gen.Generate(ctx, generate.State{
		Selection:    s.Selection(),
		UnitName:     s.SelectedName(model.LevelUnit),
		TopicName:    s.SelectedName(model.LevelTopic),
		Engine:       f.engine,
		Distribution: f.distribution,
		TotalMarks:   f.totalMarks,
	})
	if err != nil {
		status := http.StatusBadGateway
		var notice *views.Notice
		if msgID, ok := generate.IsValidation(err); ok {
			status = http.StatusUnprocessableEntity
			notice = &views.Notice{Kind: "error", Text: appI18n.T(ctx, msgID)}
		} else if errors.Is(err, api.ErrUnauthorized) {
			h.sessionExpired(w, r)
			return
		} else {
			notice = errorNotice(ctx, err, "GenerationFailed")
		}
		notices = append(notices, *notice)
		render(w, r, status, views.GeneratePage(h.generateData(s, f, notices)))
		return
	}

	if prefs, err := h.store.GetPreferences(); err != nil {
		slog.Warn("failed to read preferences, keeping stored ones", "error", err)
	} else {
		prefs.Engine = f.engine
		prefs.Distribution = f.distribution
		if err := h.store.SavePreferences(prefs); err != nil {
			slog.Warn("failed to save preferences", "error", err)
		}
	}

	slog.Info("paper generated", "paper_id", res.PaperID)
	http.Redirect(w, r, h.path(res.DetailPath)+"?generated=1", http.StatusSeeOther)
}
