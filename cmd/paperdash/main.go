package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/paperdash/internal/api"
	"github.com/pavelanni/paperdash/internal/handler"
	appI18n "github.com/pavelanni/paperdash/internal/i18n"
	"github.com/pavelanni/paperdash/internal/model"
	"github.com/pavelanni/paperdash/internal/session"
	"github.com/pavelanni/paperdash/internal/store"
)

var errSessionExpired = errors.New("session expired, run paperdash login")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "paperdash",
		Short:        "Dashboard and CLI for the question paper generation service",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("db", "paperdash.db", "SQLite database for the session token and preferences")
	pf.String("api-host", "http://localhost:8000", "Backend host used to resolve a relative API base URL")
	pf.String("api-base-url", "/api", "Backend API base URL, absolute or relative to --api-host")
	pf.Duration("api-timeout", 0, "Per-request timeout for backend calls (0 = none)")
	pf.StringP("lang", "l", "en", "UI language (en, ru, auto)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	serve := serveCmd()
	root.AddCommand(
		serve,
		loginCmd(), logoutCmd(), whoamiCmd(),
		optionsCmd(), pickCmd(), generateCmd(), historyCmd(),
		paperCmd(), studentsCmd(),
	)

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `paperdash --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", "127.0.0.1:8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", false, "Set Secure flag on cookies")
	addGenerationFlags(f)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PAPERDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// The browser build reads its backend from VITE_API_BASE_URL.
	_ = v.BindEnv("api-base-url", "PAPERDASH_API_BASE_URL", "VITE_API_BASE_URL")

	v.SetConfigName("paperdash")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/paperdash")
	v.AddConfigPath("/etc/paperdash")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// resolveAPIBase turns a relative base such as "/api" into an absolute URL
// on host.
func resolveAPIBase(host, base string) (string, error) {
	base = strings.TrimSpace(base)
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return strings.TrimRight(base, "/"), nil
	}
	h, err := url.Parse(strings.TrimSpace(host))
	if err != nil || h.Scheme == "" || h.Host == "" {
		return "", fmt.Errorf("api host %q must be an absolute URL", host)
	}
	ref, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse api base %q: %w", base, err)
	}
	return strings.TrimRight(h.ResolveReference(ref).String(), "/"), nil
}

// app is what every backend-facing command needs.
type app struct {
	v       *viper.Viper
	store   *store.Store
	session *session.Session
	api     *api.Client
}

func openApp(cmd *cobra.Command) (*app, error) {
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sess := session.New(db)
	if err := sess.Load(); err != nil {
		db.Close()
		return nil, err
	}

	base, err := resolveAPIBase(v.GetString("api-host"), v.GetString("api-base-url"))
	if err != nil {
		db.Close()
		return nil, err
	}
	client, err := api.New(base,
		api.WithTimeout(v.GetDuration("api-timeout")),
		api.WithTokenSource(sess),
		api.OnUnauthorized(sess.HandleUnauthorized),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create API client: %w", err)
	}

	lang := v.GetString("lang")
	if lang == "auto" {
		locale, _, _ := strings.Cut(os.Getenv("LANG"), ".")
		lang = appI18n.Match(strings.ReplaceAll(locale, "_", "-"))
	}
	if err := appI18n.Init(lang); err != nil {
		db.Close()
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return &app{v: v, store: db, session: sess, api: client}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp wraps a command body with logging, app setup and the CLI's
// answer to a rejected token.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd)
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		err = fn(cmd, args, a)
		if errors.Is(err, api.ErrUnauthorized) {
			return errSessionExpired
		}
		return err
	}
}

func dashboardConfig(v *viper.Viper, basePath string) (model.DashboardConfig, error) {
	format, err := model.ParsePayloadFormat(v.GetString("payload-format"))
	if err != nil {
		return model.DashboardConfig{}, err
	}
	engine, err := model.ParseEngine(v.GetString("engine"))
	if err != nil {
		return model.DashboardConfig{}, err
	}
	return model.DashboardConfig{
		BasePath:         basePath,
		SecureCookies:    v.GetBool("secure-cookies"),
		PayloadFormat:    format,
		RequireUnitTopic: v.GetBool("require-unit-topic"),
		DefaultEngine:    engine,
		TotalMarks:       v.GetInt("total-marks"),
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	v := a.v

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg, err := dashboardConfig(v, basePath)
	if err != nil {
		return err
	}
	// The dashboard serves many browsers, each with its own token, so it
	// gets a client without the CLI's token source or 401 hook.
	client, err := api.New(a.api.BaseURL(), api.WithTimeout(v.GetDuration("api-timeout")))
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}
	browsers := session.NewBrowsers(a.store)
	if err := browsers.Cleanup(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	}
	h, err := handler.New(client, browsers, a.store, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(v.GetString("lang")))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting dashboard",
		"addr", addr,
		"api_base", a.api.BaseURL(),
		"lang", v.GetString("lang"),
		"payload_format", cfg.PayloadFormat,
		"require_unit_topic", cfg.RequireUnitTopic,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}
