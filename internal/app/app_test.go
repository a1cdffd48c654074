package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-text-crawler/internal/config"
	"github.com/JakeFAU/site-text-crawler/internal/crawler"
	"github.com/JakeFAU/site-text-crawler/internal/storage/memory"
)

type stubBackend struct {
	pages  map[string]crawler.Page
	links  []string
	closed int
}

func (b *stubBackend) Render(_ context.Context, url string) (crawler.Page, error) {
	p, ok := b.pages[url]
	if !ok {
		return crawler.Page{}, errors.New("not found")
	}
	return p, nil
}

func (b *stubBackend) Discover(context.Context, string) ([]string, error) {
	return b.links, nil
}

func (b *stubBackend) Close() error {
	b.closed++
	return nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("SITECRAWLER_CRAWLER_OUTPUT_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  delay_seconds: 0\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func factoryFor(b crawler.Backend) BackendFactory {
	return func(context.Context, config.RenderConfig, *zap.Logger) (crawler.Backend, error) {
		return b, nil
	}
}

func TestAppRunsCrawlIntoLocalStorage(t *testing.T) {
	cfg := testConfig(t)
	backend := &stubBackend{
		pages: map[string]crawler.Page{
			"https://example.com/":      {URL: "https://example.com/", Title: "Home", HTML: "<main>Welcome</main>"},
			"https://example.com/about": {URL: "https://example.com/about", Title: "About", HTML: "<main>About us</main>"},
		},
		links: []string{"/", "/about", "https://other.com/x"},
	}

	a, err := New(context.Background(), cfg, zap.NewNop(), WithBackendFactory(factoryFor(backend)))
	require.NoError(t, err)
	defer a.Close()

	base, err := crawler.ParseBase("example.com")
	require.NoError(t, err)
	eng, err := a.Engine(base)
	require.NoError(t, err)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, backend.closed)

	pages, err := filepath.Glob(filepath.Join(cfg.Crawler.OutputDir, "pages", "*.txt"))
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	metas, err := filepath.Glob(filepath.Join(cfg.Crawler.OutputDir, "metadata", "*.json"))
	require.NoError(t, err)
	assert.Len(t, metas, 2)
	assert.FileExists(t, cfg.Crawler.SessionPath())
}

func TestAppUsesInjectedBlobStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Prefix = "runs"
	store := memory.NewBlobStore()
	backend := &stubBackend{pages: map[string]crawler.Page{
		"https://example.com/": {URL: "https://example.com/", Title: "Home", HTML: "<main>Hi</main>"},
	}}

	a, err := New(context.Background(), cfg, nil, WithBackendFactory(factoryFor(backend)), WithBlobStore(store))
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Logger())

	base, err := crawler.ParseBase("https://example.com")
	require.NoError(t, err)
	eng, err := a.Engine(base)
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"runs/pages/Home_182ccedb.txt", "runs/metadata/Home_182ccedb.txt.json"}, store.Paths())
}

func TestAppBackendFailureIsUnavailable(t *testing.T) {
	cfg := testConfig(t)
	failing := func(context.Context, config.RenderConfig, *zap.Logger) (crawler.Backend, error) {
		return nil, errors.New("chrome not found")
	}
	_, err := New(context.Background(), cfg, zap.NewNop(), WithBackendFactory(failing))
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrBackendUnavailable)
}

func TestDefaultBackend(t *testing.T) {
	b, err := DefaultBackend(context.Background(), config.RenderConfig{Backend: config.BackendColly}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = DefaultBackend(context.Background(), config.RenderConfig{Backend: "selenium"}, zap.NewNop())
	assert.ErrorIs(t, err, crawler.ErrBackendUnavailable)
}

func TestServeMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, zap.NewNop(), WithBackendFactory(factoryFor(&stubBackend{})))
	require.NoError(t, err)
	defer a.Close()
	assert.NoError(t, a.ServeMetrics(context.Background()))
}
