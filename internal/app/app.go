// Package app wires the shared dependencies used by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dgallion1/studyguide/internal/cache"
	"github.com/dgallion1/studyguide/internal/config"
	"github.com/dgallion1/studyguide/internal/llm"
	"github.com/dgallion1/studyguide/internal/logger"
	"github.com/dgallion1/studyguide/internal/pipeline"
	"github.com/dgallion1/studyguide/internal/render"
	"github.com/dgallion1/studyguide/internal/store"
	"github.com/dgallion1/studyguide/internal/tracing"
)

const serviceName = "studyguide"

type App struct {
	Cfg      config.Config
	Log      *logger.Logger
	Stats    *llm.Stats
	Client   *llm.Client
	Cache    cache.Cache
	Gen      llm.Generator
	Store    *store.Store
	Renderer *render.Renderer

	shutdownTracing func(context.Context) error
}

// New builds every dependency from cfg. The generation stack is
// client -> retrier -> response cache, so cached hits skip retries entirely.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	shutdown, err := tracing.Init(ctx, log, serviceName, cfg.TracingEnabled)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	a.Stats = llm.NewStats(5 * time.Minute)
	a.Client = llm.NewClient(cfg.PplxAPIKey, cfg.PplxBaseURL, cfg.PplxModel, a.Stats, log.With("component", "llm"))

	a.Cache, err = cache.New(ctx, cache.Options{Type: cfg.CacheType, RedisURL: cfg.RedisURL})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	retrier := llm.NewRetrier(a.Client, cfg.MaxRetries, log)
	a.Gen = cache.NewCachedGenerator(retrier, a.Cache, cfg.CacheNamespace, cfg.CacheTTL, cfg.CacheType, log)

	a.Store, err = store.Open(cfg.DatabasePath, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	a.Renderer, err = render.NewRenderer(cfg.TemplateDir, cfg.AssetDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	log.Info("app initialized",
		"model", cfg.PplxModel,
		"cache", cfg.CacheType,
		"database", cfg.DatabasePath,
		"tracing", cfg.TracingEnabled,
	)
	return a, nil
}

// Worker builds a pipeline worker over the app's dependencies.
func (a *App) Worker() *pipeline.Worker {
	return pipeline.NewWorker(a.Gen, a.Store, a.Renderer, a.Log.With("component", "worker"), pipeline.WorkerOptions{
		SiteDir:          a.Cfg.SiteDir,
		DiagramFormat:    a.Cfg.DiagramFormat,
		DiagramFont:      a.Cfg.DiagramFont,
		MaxConcurrent:    a.Cfg.MaxConcurrentGenerate,
		MaxParseAttempts: a.Cfg.MaxParseAttempts,
		TokenBudgetUSD:   a.Cfg.TokenBudgetUSD,
		PricePer1KTokens: a.Cfg.PricePer1KTokens,
	})
}

// Close releases everything New opened. It is safe on a partly built App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Client != nil {
		a.Client.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Log.Warn("close cache", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("close store", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("shutdown tracing", "error", err)
		}
	}
	a.Log.Sync()
}
