// Package chromedprender renders pages in headless Chrome and discovers links hidden
// behind dropdown menus by clicking them before reading the DOM.
package chromedprender

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
	"github.com/JakeFAU/site-text-crawler/internal/render"
)

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Config controls the headless browser.
type Config struct {
	UserAgent string
	// PageTimeout bounds one Render or Discover call.
	PageTimeout time.Duration
	// Settle is slept after the body is ready on ordinary pages.
	Settle time.Duration
	// DiscoverySettle is slept on the homepage before menus are probed.
	DiscoverySettle time.Duration
	// ClickSettle is slept after dropdowns are clicked.
	ClickSettle time.Duration
	// MaxQPS caps page loads per host. Zero disables the budget.
	MaxQPS float64
	// Headful runs a visible browser window.
	Headful bool
}

// Backend implements crawler.Backend with chromedp.
type Backend struct {
	cfg    Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	closeOnce sync.Once
}

// New prepares a browser allocator. The browser itself starts in Start.
func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	if cfg.MaxQPS < 0 {
		return nil, fmt.Errorf("max_qps must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)
	return &Backend{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
		limiters:    make(map[string]*rate.Limiter),
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	return cfg
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	return opts
}

// Start launches the browser. Failure wraps crawler.ErrBackendUnavailable.
// The browser lives until Close, so the first Run uses the browser context itself.
func (b *Backend) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrBackendUnavailable, err)
	}
	if err := chromedp.Run(b.browserCtx); err != nil {
		return fmt.Errorf("%w: launch chrome: %w", crawler.ErrBackendUnavailable, err)
	}
	return nil
}

// Render loads url in a fresh tab and returns its title and DOM.
func (b *Backend) Render(ctx context.Context, url string) (crawler.Page, error) {
	var page crawler.Page
	err := b.inTab(ctx, url, func(tabCtx context.Context) error {
		return chromedp.Run(tabCtx,
			b.navigate(url, b.cfg.Settle),
			chromedp.Title(&page.Title),
			chromedp.Location(&page.FinalURL),
			chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
		)
	})
	if err != nil {
		return crawler.Page{}, err
	}
	page.URL = url
	page.Title = strings.TrimSpace(page.Title)
	return page, nil
}

// Discover loads the homepage, clicks dropdown containers to reveal their menus and
// returns the candidate hrefs found afterwards.
func (b *Backend) Discover(ctx context.Context, baseURL string) ([]string, error) {
	var (
		markup  string
		clicked int
	)
	err := b.inTab(ctx, baseURL, func(tabCtx context.Context) error {
		return chromedp.Run(tabCtx,
			b.navigate(baseURL, b.cfg.DiscoverySettle),
			chromedp.Evaluate(clickScript(render.ClickableSelector()), &clicked),
			sleep(b.cfg.ClickSettle),
			chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
		)
	})
	if err != nil {
		return nil, err
	}
	links, err := render.Links(markup)
	if err != nil {
		return nil, fmt.Errorf("discover links: %w", err)
	}
	b.logger.Debug("Discovered links",
		zap.String("url", baseURL),
		zap.Int("dropdowns_clicked", clicked),
		zap.Int("count", len(links)),
	)
	return links, nil
}

// Close shuts the browser down. Safe to call more than once.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if err := chromedp.Cancel(b.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Warn("Failed to close browser", zap.Error(err))
		}
		b.browserStop()
		b.allocCancel()
	})
	return nil
}

// inTab runs fn in a new tab bounded by the page timeout and by ctx.
func (b *Backend) inTab(ctx context.Context, target string, fn func(context.Context) error) error {
	if err := b.wait(ctx, target); err != nil {
		return err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, b.cfg.PageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	err := fn(tabCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("chromedp %s canceled: %w", target, ctx.Err())
	}
	return fmt.Errorf("%w: chromedp %s after %s: %w", crawler.ErrRender, target, time.Since(start).Round(time.Millisecond), err)
}

func (b *Backend) navigate(target string, settle time.Duration) chromedp.Tasks {
	return chromedp.Tasks{
		b.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		sleep(settle),
	}
}

func (b *Backend) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// wait blocks on the per-host page budget.
func (b *Backend) wait(ctx context.Context, target string) error {
	limiter := b.limiterFor(target)
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chromedp rate wait canceled: %w", err)
	}
	return nil
}

func (b *Backend) limiterFor(target string) *rate.Limiter {
	if b.cfg.MaxQPS <= 0 {
		return nil
	}
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	limiter, ok := b.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(b.cfg.MaxQPS), 1)
		b.limiters[host] = limiter
	}
	return limiter
}

func sleep(d time.Duration) chromedp.Action {
	if d <= 0 {
		return chromedp.ActionFunc(func(context.Context) error { return nil })
	}
	return chromedp.Sleep(d)
}

// clickScript clicks every element matching selector and returns how many were clicked.
// Individual click failures are ignored.
func clickScript(selector string) string {
	return fmt.Sprintf(`(() => {
  let n = 0;
  for (const el of document.querySelectorAll(%q)) {
    try { el.click(); n++; } catch (e) {}
  }
  return n;
})()`, selector)
}
