// Package app builds the long-lived services for a crawl from configuration and owns
// their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-text-crawler/internal/artifact"
	"github.com/JakeFAU/site-text-crawler/internal/clock/system"
	"github.com/JakeFAU/site-text-crawler/internal/config"
	"github.com/JakeFAU/site-text-crawler/internal/crawler"
	"github.com/JakeFAU/site-text-crawler/internal/engine"
	"github.com/JakeFAU/site-text-crawler/internal/extract"
	"github.com/JakeFAU/site-text-crawler/internal/id/uuid"
	"github.com/JakeFAU/site-text-crawler/internal/metrics"
	"github.com/JakeFAU/site-text-crawler/internal/publisher/pubsub"
	chromedprender "github.com/JakeFAU/site-text-crawler/internal/render/chromedp"
	collyrender "github.com/JakeFAU/site-text-crawler/internal/render/colly"
	"github.com/JakeFAU/site-text-crawler/internal/session"
	"github.com/JakeFAU/site-text-crawler/internal/storage/gcs"
	"github.com/JakeFAU/site-text-crawler/internal/storage/local"
	"github.com/JakeFAU/site-text-crawler/internal/storage/postgres"
)

// BackendFactory builds and starts a render backend.
type BackendFactory func(ctx context.Context, cfg config.RenderConfig, logger *zap.Logger) (crawler.Backend, error)

// App holds the services shared by a run.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	backend  crawler.Backend
	extract  crawler.Extractor
	writer   crawler.ArtifactWriter
	index    crawler.ArtifactIndex
	pub      crawler.Publisher
	recorder *metrics.Recorder
	registry *prometheus.Registry
	clock    crawler.Clock
	closers  []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	backendFactory BackendFactory
	blobStore      crawler.BlobStore
}

// WithBackendFactory replaces the config-selected render backend.
func WithBackendFactory(f BackendFactory) Option {
	return func(o *options) { o.backendFactory = f }
}

// WithBlobStore replaces the config-selected blob store.
func WithBlobStore(store crawler.BlobStore) Option {
	return func(o *options) { o.blobStore = store }
}

// New wires every service named by cfg. A backend failure wraps
// crawler.ErrBackendUnavailable. On error everything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{backendFactory: DefaultBackend}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, clock: system.New(), registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.recorder, err = metrics.New(a.registry); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if a.extract, err = extract.New(cfg.Extract.Format); err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}

	store := o.blobStore
	if store == nil {
		if store, err = a.openBlobStore(ctx); err != nil {
			return nil, err
		}
	}
	if a.writer, err = artifact.New(store, artifact.Config{Prefix: cfg.Storage.Prefix}); err != nil {
		return nil, fmt.Errorf("init artifact writer: %w", err)
	}

	if err = a.openIndex(ctx); err != nil {
		return nil, err
	}
	if err = a.openPublisher(ctx); err != nil {
		return nil, err
	}

	backend, err := o.backendFactory(ctx, cfg.Render, logger)
	if err != nil {
		if !errors.Is(err, crawler.ErrBackendUnavailable) {
			err = fmt.Errorf("%w: %w", crawler.ErrBackendUnavailable, err)
		}
		return nil, err
	}
	a.backend = backend
	logger.Info("Application services initialized", zap.String("render_backend", cfg.Render.Backend))
	return a, nil
}

// DefaultBackend builds the backend named by cfg.Backend.
func DefaultBackend(ctx context.Context, cfg config.RenderConfig, logger *zap.Logger) (crawler.Backend, error) {
	switch cfg.Backend {
	case config.BackendColly:
		return collyrender.New(collyrender.Config{UserAgent: cfg.UserAgent, Timeout: cfg.PageTimeout}, logger), nil
	case config.BackendChromedp, "":
		b, err := chromedprender.New(chromedprender.Config{
			UserAgent:       cfg.UserAgent,
			PageTimeout:     cfg.PageTimeout,
			Settle:          cfg.Settle,
			DiscoverySettle: cfg.DiscoverySettle,
			ClickSettle:     cfg.ClickSettle,
			MaxQPS:          cfg.MaxQPS,
			Headful:         cfg.Headful,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrBackendUnavailable, err)
		}
		if err := b.Start(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown render backend %q", crawler.ErrBackendUnavailable, cfg.Backend)
	}
}

func (a *App) openBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		a.logger.Info("Using GCS storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Crawler.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	}
}

func (a *App) openIndex(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		return nil
	}
	idx, err := postgres.New(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init artifact index: %w", err)
	}
	a.closers = append(a.closers, func() error { idx.Close(); return nil })
	if a.cfg.DB.EnsureSchema {
		if err := idx.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	a.index = idx
	a.logger.Info("Artifact index enabled", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Topic == "" {
		return nil
	}
	pub, err := pubsub.Dial(ctx, pubsub.Config{ProjectID: a.cfg.PubSub.ProjectID, Topic: a.cfg.PubSub.Topic})
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	a.pub = pub
	a.logger.Info("Artifact notifications enabled", zap.String("topic", a.cfg.PubSub.Topic))
	return nil
}

// Engine builds the crawl engine for base. The engine takes ownership of the backend.
func (a *App) Engine(base crawler.Target) (*engine.Engine, error) {
	store := session.New(a.cfg.Crawler.SessionPath(), a.clock, a.logger)
	return engine.New(base, engine.Config{
		MaxPages:        a.cfg.Crawler.MaxPages,
		Delay:           a.cfg.Crawler.Delay(),
		CheckpointEvery: a.cfg.Crawler.CheckpointEvery,
		PageTimeout:     a.cfg.Render.PageTimeout,
		Topic:           a.cfg.PubSub.Topic,
	}, engine.Deps{
		Backend:   a.backend,
		Extractor: a.extract,
		Session:   store,
		Writer:    a.writer,
		Index:     a.index,
		Publisher: a.pub,
		Recorder:  a.recorder,
		Clock:     a.clock,
		IDs:       uuid.New(),
	}, a.logger)
}

// ServeMetrics runs the metrics listener until ctx is done. It returns immediately when
// metrics.addr is unset.
func (a *App) ServeMetrics(ctx context.Context) error {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	return metrics.Serve(ctx, a.cfg.Metrics.Addr, a.recorder.Router(a.registry), a.logger)
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close releases storage, index and publisher clients. The backend is released by the engine.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}
