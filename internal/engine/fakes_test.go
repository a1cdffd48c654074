package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
)

type fakeBackend struct {
	mu          sync.Mutex
	pages       map[string]crawler.Page
	errs        map[string]error
	links       []string
	discoverErr error
	// onRender runs before each render with the 1-based render count.
	onRender func(ctx context.Context, n int, url string) error
	rendered []string
	closed   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages: make(map[string]crawler.Page),
		errs:  make(map[string]error),
	}
}

func (b *fakeBackend) page(url, title, body string) {
	b.pages[url] = crawler.Page{URL: url, Title: title, HTML: body}
}

func (b *fakeBackend) Render(ctx context.Context, url string) (crawler.Page, error) {
	b.mu.Lock()
	b.rendered = append(b.rendered, url)
	n := len(b.rendered)
	hook := b.onRender
	b.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, n, url); err != nil {
			return crawler.Page{}, err
		}
	}
	if err, ok := b.errs[url]; ok {
		return crawler.Page{}, err
	}
	p, ok := b.pages[url]
	if !ok {
		return crawler.Page{}, errors.New("404")
	}
	return p, nil
}

func (b *fakeBackend) Discover(context.Context, string) ([]string, error) {
	return b.links, b.discoverErr
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *fakeBackend) renderedURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.rendered...)
}

type textExtractor struct{}

func (textExtractor) Extract(html string) (string, error) {
	return strings.TrimSpace(html), nil
}

type fakeSession struct {
	mu      sync.Mutex
	visited map[string]bool
	failed  map[string]bool
	// retry holds failures carried over by Load; they are attempted again.
	retry map[string]bool
	loads int
	// checkpoints records the visited count at each checkpoint.
	checkpoints []int
	failNext    error
}

func newFakeSession() *fakeSession {
	return &fakeSession{visited: map[string]bool{}, failed: map[string]bool{}, retry: map[string]bool{}}
}

func (s *fakeSession) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	s.retry = make(map[string]bool, len(s.failed))
	for u := range s.failed {
		s.retry[u] = true
	}
}

func (s *fakeSession) Status(url string) crawler.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.visited[url]:
		return crawler.StatusVisited
	case s.failed[url] && !s.retry[url]:
		return crawler.StatusFailed
	default:
		return crawler.StatusUnresolved
	}
}

func (s *fakeSession) MarkVisited(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited[url] = true
	delete(s.failed, url)
	delete(s.retry, url)
}

func (s *fakeSession) MarkFailed(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[url] {
		return
	}
	delete(s.retry, url)
	s.failed[url] = true
}

func (s *fakeSession) Checkpoint(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = append(s.checkpoints, len(s.visited))
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	return nil
}

func (s *fakeSession) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited), len(s.failed)
}

type failingWriter struct {
	next    crawler.ArtifactWriter
	failFor map[string]error
}

func (w *failingWriter) Write(ctx context.Context, a crawler.Artifact) (crawler.ArtifactRecord, error) {
	if err, ok := w.failFor[a.URL]; ok {
		return crawler.ArtifactRecord{}, err
	}
	return w.next.Write(ctx, a)
}

type fakeIndex struct {
	mu      sync.Mutex
	records []crawler.ArtifactRecord
	err     error
}

func (i *fakeIndex) RecordArtifact(_ context.Context, _ string, _ crawler.Artifact, r crawler.ArtifactRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.records = append(i.records, r)
	return nil
}

type fakeRecorder struct {
	mu          sync.Mutex
	outcomes    map[crawler.Outcome]int
	reasons     []string
	checkpoints int
	renders     int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{outcomes: map[crawler.Outcome]int{}}
}

func (r *fakeRecorder) ObserveOutcome(_ string, o crawler.Outcome, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o]++
	if reason != "" {
		r.reasons = append(r.reasons, reason)
	}
}

func (r *fakeRecorder) ObserveCheckpoint(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints++
}

func (r *fakeRecorder) ObserveRender(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
}

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time {
	return c.now
}

type fakeIDs struct{}

func (fakeIDs) NewID() (string, error) {
	return "run-1", nil
}
