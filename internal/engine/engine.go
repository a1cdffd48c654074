// Package engine drives one crawl run: discover links on the homepage, then render,
// extract and persist each frontier entry while keeping the session file current.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-text-crawler/internal/artifact"
	"github.com/JakeFAU/site-text-crawler/internal/crawler"
	"github.com/JakeFAU/site-text-crawler/internal/frontier"
	"github.com/JakeFAU/site-text-crawler/internal/logging"
)

const (
	defaultCheckpointEvery = 5
	finalFlushTimeout      = 10 * time.Second
)

// Config controls one run.
type Config struct {
	MaxPages        int
	Delay           time.Duration
	CheckpointEvery int
	// PageTimeout bounds render of a single URL. Zero leaves it to the backend.
	PageTimeout time.Duration
	// Topic receives artifact notifications when a Publisher is set.
	Topic string
}

// Deps are the collaborators of an Engine. Backend, Extractor, Session and Writer are
// required; the rest are optional.
type Deps struct {
	Backend   crawler.Backend
	Extractor crawler.Extractor
	Session   crawler.SessionStore
	Writer    crawler.ArtifactWriter
	Index     crawler.ArtifactIndex
	Publisher crawler.Publisher
	Recorder  crawler.Recorder
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
}

// Notification is published after an artifact is saved.
type Notification struct {
	RunID         string `json:"run_id"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	Filename      string `json:"filename"`
	Digest        string `json:"digest"`
	PageURI       string `json:"page_uri"`
	MetadataURI   string `json:"metadata_uri"`
	ContentLength int    `json:"content_length"`
	ScrapedAt     string `json:"scraped_at"`
}

// Engine runs a crawl against a single base URL.
type Engine struct {
	base   crawler.Target
	cfg    Config
	deps   Deps
	logger *zap.Logger

	sleep     func(context.Context, time.Duration) error
	closeOnce sync.Once
}

// New validates deps and returns an Engine for base.
func New(base crawler.Target, cfg Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	switch {
	case base.URL == "":
		return nil, fmt.Errorf("base url is required")
	case deps.Backend == nil:
		return nil, fmt.Errorf("render backend is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Session == nil:
		return nil, fmt.Errorf("session store is required")
	case deps.Writer == nil:
		return nil, fmt.Errorf("artifact writer is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = defaultCheckpointEvery
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		base:   base,
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		sleep:  sleepContext,
	}, nil
}

// Run processes the frontier once. The session is checkpointed and the backend closed
// before Run returns, however the loop ends. A canceled ctx stops the loop before the
// next entry and is reported as the returned error alongside the partial summary.
func (e *Engine) Run(ctx context.Context) (summary crawler.Summary, err error) {
	summary.RunID = e.runID()
	logger := logging.ForRun(e.logger, summary.RunID, e.base.URL)

	defer func() {
		e.finish(ctx, logger)
		summary.Visited, summary.FailedTotal = e.deps.Session.Counts()
		logger.Info("Crawl complete",
			zap.Int("frontier", summary.Frontier),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("already_visited", summary.SkippedVisited),
			zap.Int("previously_failed", summary.SkippedFailed),
			zap.Int("failed", summary.Failed),
			zap.Int("visited_total", summary.Visited),
			zap.Int("failed_total", summary.FailedTotal),
		)
	}()

	e.deps.Session.Load()

	front := e.seed(ctx, logger)
	summary.Frontier = front.Len()
	logger.Info("Frontier seeded", zap.Int("urls", front.Len()))

	processed := 0
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, fmt.Errorf("crawl interrupted: %w", ctxErr)
		}
		target, ok := front.Next()
		if !ok {
			return summary, nil
		}
		pos := front.Position()

		switch e.deps.Session.Status(target.Key()) {
		case crawler.StatusVisited:
			summary.SkippedVisited++
			e.deps.Recorder.ObserveOutcome(target.URL, crawler.OutcomeSkippedVisited, "")
			logger.Info("Skipping already visited", zap.String("url", target.URL))
			continue
		case crawler.StatusFailed:
			summary.SkippedFailed++
			e.deps.Recorder.ObserveOutcome(target.URL, crawler.OutcomeSkippedFailed, "")
			logger.Info("Skipping URL that already failed this run", zap.String("url", target.URL))
			continue
		}

		logger.Info("Processing",
			zap.String("url", target.URL),
			zap.String("progress", fmt.Sprintf("%d/%d", pos, front.Len())),
		)
		procErr := e.process(ctx, summary.RunID, target, logger)
		if procErr != nil && ctx.Err() != nil {
			// Interrupted mid-page: the URL stays unresolved for the next run.
			return summary, fmt.Errorf("crawl interrupted: %w", ctx.Err())
		}
		reason := crawler.FailureReason(procErr)
		if procErr != nil {
			summary.Failed++
			e.deps.Recorder.ObserveOutcome(target.URL, crawler.OutcomeFailed, reason)
			logger.Warn("Page failed",
				zap.String("url", target.URL),
				zap.String("progress", fmt.Sprintf("%d/%d", pos, front.Len())),
				zap.String("reason", reason),
				zap.Error(procErr),
			)
		} else {
			summary.Succeeded++
			e.deps.Recorder.ObserveOutcome(target.URL, crawler.OutcomeSucceeded, "")
		}

		processed++
		if processed%e.cfg.CheckpointEvery == 0 {
			e.checkpoint(ctx, logger)
		}
		if front.Position() < front.Len() {
			if err := e.sleep(ctx, e.cfg.Delay); err != nil {
				return summary, fmt.Errorf("crawl interrupted: %w", err)
			}
		}
	}
}

// seed discovers homepage links. Discovery failure leaves only the base URL.
func (e *Engine) seed(ctx context.Context, logger *zap.Logger) *frontier.Frontier {
	raw, err := e.deps.Backend.Discover(ctx, e.base.URL)
	if err != nil {
		logger.Warn("Link discovery failed; crawling base URL only", zap.String("url", e.base.URL), zap.Error(err))
		return frontier.New(e.base, nil, e.cfg.MaxPages)
	}
	discovered := crawler.FilterLinks(e.base, raw)
	logger.Debug("Links discovered", zap.Int("raw", len(raw)), zap.Int("same_domain", len(discovered)))
	return frontier.New(e.base, discovered, e.cfg.MaxPages)
}

// process renders, extracts and persists one target and records the result in the session.
func (e *Engine) process(ctx context.Context, runID string, target crawler.Target, logger *zap.Logger) error {
	a, err := e.build(ctx, target)
	if err != nil {
		if ctx.Err() == nil {
			e.deps.Session.MarkFailed(target.Key())
		}
		return err
	}
	record, err := e.deps.Writer.Write(ctx, a)
	if err != nil {
		if ctx.Err() == nil {
			e.deps.Session.MarkFailed(target.Key())
		}
		if !errors.Is(err, crawler.ErrPersistence) {
			err = fmt.Errorf("%w: %w", crawler.ErrPersistence, err)
		}
		return err
	}
	e.deps.Session.MarkVisited(target.Key())
	logger.Info("Saved", zap.String("url", target.URL), zap.String("filename", record.Filename))

	e.index(ctx, runID, a, record, logger)
	e.publish(ctx, runID, a, record, logger)
	return nil
}

func (e *Engine) build(ctx context.Context, target crawler.Target) (crawler.Artifact, error) {
	renderCtx := ctx
	if e.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, e.cfg.PageTimeout)
		defer cancel()
	}
	start := e.deps.Clock.Now()
	page, err := e.deps.Backend.Render(renderCtx, target.URL)
	e.deps.Recorder.ObserveRender(target.URL, e.deps.Clock.Now().Sub(start))
	if err != nil {
		if !errors.Is(err, crawler.ErrRender) {
			err = fmt.Errorf("%w: %w", crawler.ErrRender, err)
		}
		return crawler.Artifact{}, err
	}
	text, err := e.deps.Extractor.Extract(page.HTML)
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("%w: %w", crawler.ErrEmptyContent, err)
	}
	if strings.TrimSpace(text) == "" {
		return crawler.Artifact{}, fmt.Errorf("%w: %s", crawler.ErrEmptyContent, target.URL)
	}
	return artifact.Build(target.URL, page.Title, text, e.deps.Clock.Now()), nil
}

func (e *Engine) index(
	ctx context.Context,
	runID string,
	a crawler.Artifact,
	record crawler.ArtifactRecord,
	logger *zap.Logger,
) {
	if e.deps.Index == nil {
		return
	}
	if err := e.deps.Index.RecordArtifact(ctx, runID, a, record); err != nil {
		logger.Warn("Artifact index update failed", zap.String("url", a.URL), zap.Error(err))
	}
}

func (e *Engine) publish(
	ctx context.Context,
	runID string,
	a crawler.Artifact,
	record crawler.ArtifactRecord,
	logger *zap.Logger,
) {
	if e.deps.Publisher == nil || e.cfg.Topic == "" {
		return
	}
	payload := Notification{
		RunID:         runID,
		URL:           a.URL,
		Title:         a.Title,
		Filename:      record.Filename,
		Digest:        a.Digest,
		PageURI:       record.PageURI,
		MetadataURI:   record.MetadataURI,
		ContentLength: record.ContentLength,
		ScrapedAt:     a.ScrapedAt.Format(time.RFC3339),
	}
	id, err := e.deps.Publisher.Publish(ctx, e.cfg.Topic, payload)
	if err != nil {
		logger.Warn("Artifact notification failed", zap.String("url", a.URL), zap.Error(err))
		return
	}
	logger.Debug("Artifact published", zap.String("url", a.URL), zap.String("message_id", id))
}

func (e *Engine) checkpoint(ctx context.Context, logger *zap.Logger) {
	err := e.deps.Session.Checkpoint(ctx)
	e.deps.Recorder.ObserveCheckpoint(err)
	if err != nil {
		logger.Error("Session checkpoint failed", zap.Error(err))
		return
	}
	visited, failed := e.deps.Session.Counts()
	logger.Debug("Session checkpointed", zap.Int("visited", visited), zap.Int("failed", failed))
}

// finish flushes the session on a context that survives cancellation, then releases
// the backend.
func (e *Engine) finish(ctx context.Context, logger *zap.Logger) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
	defer cancel()
	e.checkpoint(flushCtx, logger)
	e.closeBackend(logger)
}

func (e *Engine) closeBackend(logger *zap.Logger) {
	e.closeOnce.Do(func() {
		if err := e.deps.Backend.Close(); err != nil {
			logger.Warn("Render backend close failed", zap.Error(err))
		}
	})
}

func (e *Engine) runID() string {
	if e.deps.IDs == nil {
		return ""
	}
	id, err := e.deps.IDs.NewID()
	if err != nil {
		e.logger.Warn("Run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(string, crawler.Outcome, string) {}
func (nopRecorder) ObserveCheckpoint(error)                        {}
func (nopRecorder) ObserveRender(string, time.Duration)            {}
