// Package session persists the visited and failed URL sets that make crawls resumable.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
)

// State is the on-disk shape of a session checkpoint.
type State struct {
	VisitedURLs []string `json:"visited_urls"`
	FailedURLs  []string `json:"failed_urls"`
	LastUpdated string   `json:"last_updated"`
}

// Store holds the visited and failed sets. The two sets are disjoint at all times.
// Failures read by Load stay in the failed set but are retryable: Status reports them
// unresolved until this run marks them again.
// Every method is safe for concurrent use; Checkpoint is serialized with mutation.
type Store struct {
	path   string
	clock  crawler.Clock
	logger *zap.Logger

	mu      sync.Mutex
	visited map[string]struct{}
	failed  map[string]struct{}
	retry   map[string]struct{}
}

// New returns an empty Store persisted at path. Call Load to read a previous checkpoint.
func New(path string, clock crawler.Clock, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:    path,
		clock:   clock,
		logger:  logger,
		visited: make(map[string]struct{}),
		failed:  make(map[string]struct{}),
		retry:   make(map[string]struct{}),
	}
}

// Load replaces the in-memory sets with the persisted checkpoint. A missing file yields an
// empty session; an unreadable or malformed file yields an empty session and a warning.
// Loaded failures are retryable for the rest of the run.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visited = make(map[string]struct{})
	s.failed = make(map[string]struct{})
	s.retry = make(map[string]struct{})

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("session unreadable; starting empty", zap.String("path", s.path), zap.Error(err))
		}
		return
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("session malformed; starting empty", zap.String("path", s.path), zap.Error(err))
		return
	}
	for _, u := range state.VisitedURLs {
		s.visited[u] = struct{}{}
	}
	for _, u := range state.FailedURLs {
		if _, ok := s.visited[u]; ok {
			continue
		}
		s.failed[u] = struct{}{}
		s.retry[u] = struct{}{}
	}
	s.logger.Info("session loaded",
		zap.String("path", s.path),
		zap.Int("visited", len(s.visited)),
		zap.Int("failed", len(s.failed)),
	)
}

// Status reports which set, if any, holds url. A failure carried over from a previous
// run reports StatusUnresolved so it is attempted again.
func (s *Store) Status(url string) crawler.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[url]; ok {
		return crawler.StatusVisited
	}
	if _, ok := s.failed[url]; ok {
		if _, retry := s.retry[url]; !retry {
			return crawler.StatusFailed
		}
	}
	return crawler.StatusUnresolved
}

// MarkVisited records a success, promoting url out of the failed set.
func (s *Store) MarkVisited(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, url)
	delete(s.retry, url)
	s.visited[url] = struct{}{}
}

// MarkFailed records a failure in this run. A visited url is never demoted.
func (s *Store) MarkFailed(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[url]; ok {
		return
	}
	delete(s.retry, url)
	s.failed[url] = struct{}{}
}

// Counts returns the sizes of the visited and failed sets.
func (s *Store) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited), len(s.failed)
}

func (s *Store) snapshotLocked() State {
	return State{
		VisitedURLs: sortedKeys(s.visited),
		FailedURLs:  sortedKeys(s.failed),
		LastUpdated: s.clock.Now().Format(crawler.TimestampLayout),
	}
}

// Checkpoint atomically replaces the session file with the current sets.
// On failure the previous checkpoint is left intact and the in-memory state stays authoritative.
func (s *Store) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("checkpoint canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.MarshalIndent(s.snapshotLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := writeFileAtomic(s.path, payload); err != nil {
		return fmt.Errorf("%w: write session %s: %v", crawler.ErrPersistence, s.path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
