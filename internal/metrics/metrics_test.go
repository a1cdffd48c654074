package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestRecorderCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := New(reg)
	require.NoError(t, err)

	rec.ObserveOutcome("https://Ex.com/a", crawler.OutcomeSucceeded, "")
	rec.ObserveOutcome("https://ex.com/b", crawler.OutcomeSucceeded, "")
	rec.ObserveOutcome("https://ex.com/c", crawler.OutcomeFailed, "empty_content")
	rec.ObserveRender("https://ex.com/a", 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.pagesTotal.WithLabelValues("ex.com", "succeeded", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.pagesTotal.WithLabelValues("ex.com", "failed", "empty_content")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.renderSeconds))
}

func TestRecorderCheckpoints(t *testing.T) {
	rec, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	rec.ObserveCheckpoint(nil)
	rec.ObserveCheckpoint(errors.New("disk full"))
	rec.ObserveCheckpoint(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.checkpointsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.checkpointsTotal.WithLabelValues("error")))
	assert.Greater(t, testutil.ToFloat64(rec.lastCheckpointEpoch), 0.0)
}

func TestNewToleratesDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.NoError(t, err)
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := New(reg)
	require.NoError(t, err)
	rec.ObserveOutcome("https://ex.com/", crawler.OutcomeSkippedVisited, "")

	ts := httptest.NewServer(rec.Router(reg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sitecrawler_pages_total{outcome="skipped_visited",reason="",site="ex.com"} 1`)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.httpRequestsTotal.WithLabelValues("/healthz", "200")))
}
