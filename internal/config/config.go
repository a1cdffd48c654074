// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the XDG config directory and the local config file.
const AppName = "sitecrawler"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Render  RenderConfig  `mapstructure:"render"`
	Extract ExtractConfig `mapstructure:"extract"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CrawlerConfig governs the crawl loop and session file.
type CrawlerConfig struct {
	MaxPages        int     `mapstructure:"max_pages"`
	DelaySeconds    float64 `mapstructure:"delay_seconds"`
	CheckpointEvery int     `mapstructure:"checkpoint_every"`
	OutputDir       string  `mapstructure:"output_dir"`
	// SessionFile is relative to OutputDir unless absolute.
	SessionFile string `mapstructure:"session_file"`
}

// RenderConfig selects and tunes the render backend.
type RenderConfig struct {
	Backend         string        `mapstructure:"backend"`
	PageTimeout     time.Duration `mapstructure:"page_timeout"`
	Settle          time.Duration `mapstructure:"settle"`
	DiscoverySettle time.Duration `mapstructure:"discovery_settle"`
	ClickSettle     time.Duration `mapstructure:"click_settle"`
	UserAgent       string        `mapstructure:"user_agent"`
	MaxQPS          float64       `mapstructure:"max_qps"`
	Headful         bool          `mapstructure:"headful"`
}

// ExtractConfig selects the text extraction format.
type ExtractConfig struct {
	Format string `mapstructure:"format"`
}

// StorageConfig selects where page and metadata artifacts are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres artifact index.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig holds the optional artifact notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Render backends.
const (
	BackendChromedp = "chromedp"
	BackendColly    = "colly"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Load builds a Config from defaults, an optional file and the environment.
// An empty path searches SearchPaths and uses the first file that exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITECRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = findConfigFile(SearchPaths())
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// SearchPaths lists the config files tried when no path is given.
func SearchPaths() []string {
	return []string{
		AppName + ".yaml",
		filepath.Join(xdg.ConfigHome, AppName, "config.yaml"),
	}
}

func findConfigFile(candidates []string) string {
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.max_pages", 100)
	v.SetDefault("crawler.delay_seconds", 3)
	v.SetDefault("crawler.checkpoint_every", 5)
	v.SetDefault("crawler.output_dir", "scraped_content")
	v.SetDefault("crawler.session_file", "scraping_session.json")
	v.SetDefault("render.backend", BackendChromedp)
	v.SetDefault("render.page_timeout", 30*time.Second)
	v.SetDefault("render.settle", 2*time.Second)
	v.SetDefault("render.discovery_settle", 3*time.Second)
	v.SetDefault("render.click_settle", time.Second)
	v.SetDefault("render.user_agent", "")
	v.SetDefault("render.max_qps", 0)
	v.SetDefault("render.headful", false)
	v.SetDefault("extract.format", "text")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "artifacts")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Crawler.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("crawler.max_pages must be > 0"))
	}
	if c.Crawler.DelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("crawler.delay_seconds must be >= 0"))
	}
	if c.Crawler.CheckpointEvery <= 0 {
		errs = append(errs, fmt.Errorf("crawler.checkpoint_every must be > 0"))
	}
	if c.Crawler.OutputDir == "" && c.Storage.Backend == StorageLocal {
		errs = append(errs, fmt.Errorf("crawler.output_dir is required for local storage"))
	}
	if c.Crawler.SessionFile == "" {
		errs = append(errs, fmt.Errorf("crawler.session_file is required"))
	}
	switch c.Render.Backend {
	case BackendChromedp, BackendColly:
	default:
		errs = append(errs, fmt.Errorf("render.backend must be %q or %q", BackendChromedp, BackendColly))
	}
	if c.Render.PageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("render.page_timeout must be > 0"))
	}
	if c.Render.MaxQPS < 0 {
		errs = append(errs, fmt.Errorf("render.max_qps must be >= 0"))
	}
	switch c.Extract.Format {
	case "text", "html2text":
	default:
		errs = append(errs, fmt.Errorf("extract.format must be text or html2text"))
	}
	switch c.Storage.Backend {
	case StorageLocal:
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, fmt.Errorf("storage.gcs_bucket is required for gcs storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q", StorageLocal, StorageGCS))
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		errs = append(errs, fmt.Errorf("pubsub.project_id and pubsub.topic must be set together"))
	}
	return errors.Join(errs...)
}

// Delay converts DelaySeconds to a duration.
func (c CrawlerConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// SessionPath resolves the session file against OutputDir.
func (c CrawlerConfig) SessionPath() string {
	if filepath.IsAbs(c.SessionFile) || c.OutputDir == "" {
		return c.SessionFile
	}
	return filepath.Join(c.OutputDir, c.SessionFile)
}
