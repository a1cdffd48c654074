// Package collyrender renders pages with plain HTTP requests through gocolly.
// It does not execute JavaScript, so dropdown discovery sees only server markup.
package collyrender

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
	"github.com/JakeFAU/site-text-crawler/internal/render"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Backend implements crawler.Backend using the Colly collector.
type Backend struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Backend.
func New(cfg Config, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Backend{cfg: cfg, baseCollector: c, logger: logger}
}

// Render fetches url and returns its title and body.
func (b *Backend) Render(ctx context.Context, url string) (crawler.Page, error) {
	var (
		page     crawler.Page
		fetchErr error
	)
	collector := b.buildCollector()
	b.configureCollectorHooks(collector, &page, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return crawler.Page{}, err
	}
	page.URL = url
	page.Title = render.Title(page.HTML)
	return page, nil
}

// Discover fetches the homepage and returns its menu and navigation hrefs.
func (b *Backend) Discover(ctx context.Context, baseURL string) ([]string, error) {
	page, err := b.Render(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	links, err := render.Links(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("discover links: %w", err)
	}
	b.logger.Debug("Discovered links", zap.String("url", baseURL), zap.Int("count", len(links)))
	return links, nil
}

// Close is a no-op; the collector holds no long-lived resources.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) buildCollector() *colly.Collector {
	collector := b.baseCollector.Clone()
	if b.cfg.UserAgent != "" {
		collector.UserAgent = b.cfg.UserAgent
	}
	collector.SetRequestTimeout(b.cfg.Timeout)
	return collector
}

func (b *Backend) configureCollectorHooks(hooks collectorHooks, page *crawler.Page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		page.FinalURL = r.Request.URL.String()
		page.HTML = string(r.Body)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("colly fetch canceled: %w", err)
	}
	collector.Context = ctx
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: colly visit %s: %w", crawler.ErrRender, url, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("%w: colly response %s: %w", crawler.ErrRender, url, *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
