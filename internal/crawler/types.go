package crawler

import (
	"net/url"
	"time"
)

// TimestampLayout is the wall-clock layout used in session files, page headers and metadata.
const TimestampLayout = "2006-01-02 15:04:05"

// Target is an absolute, domain-scoped URL queued for processing.
type Target struct {
	URL    string
	Scheme string
	Host   string
	Path   string
}

// Key returns the identity used for deduplication and session membership.
func (t Target) Key() string {
	return t.URL
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return t.URL
}

func newTarget(u *url.URL) Target {
	return Target{
		URL:    u.String(),
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
	}
}

// Page is what a render backend returns for one URL.
type Page struct {
	URL      string
	FinalURL string
	Title    string
	HTML     string
}

// Artifact is the immutable result of processing one target successfully.
type Artifact struct {
	Title     string
	Body      string
	URL       string
	ScrapedAt time.Time
	Digest    string
	Filename  string
}

// ArtifactRecord describes where an artifact was persisted.
type ArtifactRecord struct {
	Filename      string
	PageURI       string
	MetadataURI   string
	ContentLength int
}

// Status is the session membership of a URL.
type Status int

// Session membership values.
const (
	StatusUnresolved Status = iota
	StatusVisited
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusVisited:
		return "visited"
	case StatusFailed:
		return "failed"
	default:
		return "unresolved"
	}
}

// Outcome is the terminal state of one frontier entry within a run.
type Outcome string

// Outcome values reported by the engine.
const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkippedVisited Outcome = "skipped_visited"
	OutcomeSkippedFailed  Outcome = "skipped_failed"
)

// Summary counts outcomes for one run.
type Summary struct {
	RunID          string
	Frontier       int
	Succeeded      int
	Failed         int
	SkippedVisited int
	SkippedFailed  int
	Visited        int
	FailedTotal    int
}

// Processed returns the number of targets that went through rendering.
func (s Summary) Processed() int {
	return s.Succeeded + s.Failed
}
