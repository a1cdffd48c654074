// Package metrics exposes Prometheus collectors for crawl runs.
package metrics

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
)

// Recorder implements crawler.Recorder.
type Recorder struct {
	pagesTotal          *prometheus.CounterVec
	renderSeconds       *prometheus.HistogramVec
	checkpointsTotal    *prometheus.CounterVec
	lastCheckpointEpoch prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
}

// New registers the crawl collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		pagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_pages_total",
				Help: "Frontier entries by terminal outcome, labeled by site, outcome and failure reason.",
			},
			[]string{"site", "outcome", "reason"},
		),
		renderSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecrawler_render_duration_seconds",
				Help:    "Histogram of page render latencies, labeled by site.",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30},
			},
			[]string{"site"},
		),
		checkpointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_checkpoints_total",
				Help: "Session checkpoints, labeled by status.",
			},
			[]string{"status"},
		),
		lastCheckpointEpoch: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitecrawler_last_checkpoint_timestamp_seconds",
				Help: "Unix time of the last successful session checkpoint.",
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_http_requests_total",
				Help: "Requests served by the metrics listener, labeled by route and code.",
			},
			[]string{"route", "code"},
		),
	}
	var err error
	if r.pagesTotal, err = register(reg, r.pagesTotal); err != nil {
		return nil, err
	}
	if r.renderSeconds, err = register(reg, r.renderSeconds); err != nil {
		return nil, err
	}
	if r.checkpointsTotal, err = register(reg, r.checkpointsTotal); err != nil {
		return nil, err
	}
	if r.lastCheckpointEpoch, err = register(reg, r.lastCheckpointEpoch); err != nil {
		return nil, err
	}
	if r.httpRequestsTotal, err = register(reg, r.httpRequestsTotal); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, reusing the collector already registered under the same name.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// SanitizeSite extracts a lowercase hostname for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveOutcome counts one frontier entry.
func (r *Recorder) ObserveOutcome(site string, outcome crawler.Outcome, reason string) {
	r.pagesTotal.WithLabelValues(SanitizeSite(site), string(outcome), reason).Inc()
}

// ObserveRender records a render latency.
func (r *Recorder) ObserveRender(site string, d time.Duration) {
	r.renderSeconds.WithLabelValues(SanitizeSite(site)).Observe(d.Seconds())
}

// ObserveCheckpoint counts a checkpoint attempt.
func (r *Recorder) ObserveCheckpoint(err error) {
	if err != nil {
		r.checkpointsTotal.WithLabelValues("error").Inc()
		return
	}
	r.checkpointsTotal.WithLabelValues("ok").Inc()
	r.lastCheckpointEpoch.SetToCurrentTime()
}
