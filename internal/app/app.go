// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/harvest/internal/auth"
	"github.com/law-makers/harvest/internal/config"
	"github.com/law-makers/harvest/internal/engine/api"
	"github.com/law-makers/harvest/internal/engine/dynamic"
	"github.com/law-makers/harvest/internal/engine/static"
	"github.com/law-makers/harvest/internal/pipeline"
	"github.com/law-makers/harvest/internal/ratelimit"
	"github.com/law-makers/harvest/internal/render"
	"github.com/law-makers/harvest/internal/retry"
	"github.com/law-makers/harvest/internal/store"
	"github.com/law-makers/harvest/internal/transport"
	"github.com/law-makers/harvest/pkg/models"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once per command and shared by it. Use Close() to release the
// store and browser resources.
type Application struct {
	Config    *config.Config
	Logger    *zerolog.Logger
	Transport *transport.Client
	Governor  *ratelimit.Governor
	Browser   *render.ChromeDriver
	Store     store.Store
	Pipeline  *pipeline.Orchestrator

	Static  *static.Strategy
	API     *api.Strategy
	Dynamic *dynamic.Strategy

	startTime time.Time
}

// Option adjusts how New wires the application
type Option func(*options)

type options struct {
	store store.Store
}

// WithStore replaces the configured store, e.g. an in-memory one for a dry run
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// New creates and initializes a new Application with all dependencies.
//
// No browser is started here; the Chrome driver launches one per session
// when a dynamic target actually runs.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := ConfigureLogging(cfg.Log, os.Stderr)

	client := transport.New(transport.Options{
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
		Proxy:     cfg.HTTP.Proxy,
		Headers:   cfg.HTTP.Headers,
	})

	governor := ratelimit.NewGovernor(map[models.SourceKind]ratelimit.PolicyConfig{
		models.KindStaticForm:  policy(cfg.Static.Rate),
		models.KindPagedAPI:    policy(cfg.API.Rate),
		models.KindDynamicList: policy(cfg.Dynamic.Rate),
	})
	logger.Debug().
		Str("static", cfg.Static.Rate.Policy).
		Str("api", cfg.API.Rate.Policy).
		Str("dynamic", cfg.Dynamic.Rate.Policy).
		Msg("Rate governor initialized")

	browser := render.NewChromeDriver(render.Options{
		Headless:    cfg.Browser.Headless,
		UserAgent:   cfg.HTTP.UserAgent,
		Proxy:       cfg.HTTP.Proxy,
		ChromePath:  cfg.Browser.ChromePath,
		MaxSessions: cfg.Browser.MaxSessions,
		ReadTimeout: cfg.Browser.ReadTimeout,
	})

	sink := o.store
	if sink == nil {
		var err error
		sink, err = openStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	staticStrategy := static.New(client, governor, static.Options{
		Endpoint:  cfg.Static.Endpoint,
		FormField: cfg.Static.FormField,
		ExtraForm: cfg.Static.ExtraForm,
		Headers:   cfg.Static.Headers,
		Container: cfg.Static.Container,
		Timeout:   cfg.Static.Timeout,
	})
	apiStrategy := api.New(client, governor, api.Options{
		BaseURL:  cfg.API.BaseURL,
		Token:    resolveToken(cfg.API.Token),
		MaxPages: cfg.API.MaxPages,
		Timeout:  cfg.API.Timeout,
	})
	dynamicStrategy := dynamic.New(browser, governor, dynamic.Options{
		URL:         cfg.Dynamic.URL,
		Container:   cfg.Dynamic.Container,
		Item:        cfg.Dynamic.Item,
		WaitTimeout: cfg.Dynamic.WaitTimeout,
	})

	orchestrator := pipeline.New(sink, pipeline.Config{
		Workers:     cfg.Pipeline.Workers,
		CallTimeout: cfg.Pipeline.CallTimeout,
		Retry: retry.Config{
			MaxRetries:     cfg.Pipeline.MaxRetries,
			InitialBackoff: cfg.Pipeline.BackoffBase,
			MaxBackoff:     cfg.Pipeline.BackoffMax,
			Multiplier:     2.0,
		},
	}, staticStrategy, apiStrategy, dynamicStrategy)

	logger.Debug().
		Str("store", cfg.Store.Driver).
		Int("workers", cfg.Pipeline.Workers).
		Msg("Application initialized")

	return &Application{
		Config:    cfg,
		Logger:    &logger,
		Transport: client,
		Governor:  governor,
		Browser:   browser,
		Store:     sink,
		Pipeline:  orchestrator,
		Static:    staticStrategy,
		API:       apiStrategy,
		Dynamic:   dynamicStrategy,
		startTime: time.Now(),
	}, nil
}

// ConfigureLogging sets the global zerolog level and writer from cfg and
// returns a logger bound to them. Unknown levels fall back to warn so that
// progress output is not drowned in info lines.
func ConfigureLogging(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel || cfg.Level == "" {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}

func policy(rp config.RatePolicy) ratelimit.PolicyConfig {
	return ratelimit.PolicyConfig{
		Policy:  ratelimit.Policy(strings.ToLower(rp.Policy)),
		Delay:   rp.Delay,
		MaxWait: rp.MaxWait,
	}
}

// openStore opens the configured backend and, with an export directory,
// mirrors every write into per-record JSON files
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	primary, err := store.Open(ctx, store.Options{Driver: cfg.Driver, DSN: cfg.DSN})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	if cfg.ExportDir == "" {
		return primary, nil
	}
	export, err := store.NewJSONFile(cfg.ExportDir)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to prepare export directory: %w", err)
	}
	return store.NewTee(primary, export), nil
}

// resolveToken prefers the configured token (which already includes
// GITHUB_TOKEN) and then the token saved with `harvest token set github`
func resolveToken(configured string) string {
	if configured != "" {
		return configured
	}
	token, err := auth.LoadToken(auth.GitHubToken)
	if err != nil {
		if !errors.Is(err, auth.ErrTokenNotFound) {
			log.Debug().Err(err).Msg("Could not read stored API token")
		}
		return ""
	}
	return token
}

// ErrorSink returns the store as an error writer when it can record failed
// targets, e.g. when exporting to a directory
func (a *Application) ErrorSink() (store.ErrorWriter, bool) {
	w, ok := a.Store.(store.ErrorWriter)
	return w, ok
}

// Close releases the store and idle HTTP connections. Browser sessions are
// torn down by the sessions themselves.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing store")
			errs = append(errs, err)
		}
	}
	if a.Transport != nil {
		a.Transport.Close()
	}
	if a.Browser != nil && a.Browser.Active() > 0 {
		a.Logger.Warn().Int64("sessions", a.Browser.Active()).Msg("Browser sessions still open at shutdown")
	}

	a.Logger.Debug().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")
	return errors.Join(errs...)
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
