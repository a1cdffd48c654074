package crawler

import (
	"context"
	"io"
	"time"
)

// Renderer loads a URL and returns its title and raw HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// LinkDiscoverer loads the homepage and returns raw candidate hrefs in discovery order.
// Hrefs may be relative or cross-domain; filtering happens in Resolve.
type LinkDiscoverer interface {
	Discover(ctx context.Context, baseURL string) ([]string, error)
}

// Backend is the singly-owned render resource. The engine releases it exactly once.
type Backend interface {
	Renderer
	LinkDiscoverer
	Close() error
}

// Extractor turns raw HTML into plain text. An empty string means no usable content.
type Extractor interface {
	Extract(html string) (string, error)
}

// SessionStore tracks visited and failed URLs across runs.
type SessionStore interface {
	Load()
	Status(url string) Status
	MarkVisited(url string)
	MarkFailed(url string)
	Checkpoint(ctx context.Context) error
	Counts() (visited int, failed int)
}

// ArtifactWriter persists one artifact's page text and metadata record.
type ArtifactWriter interface {
	Write(ctx context.Context, artifact Artifact) (ArtifactRecord, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ArtifactIndex records saved artifacts in a queryable store.
type ArtifactIndex interface {
	RecordArtifact(ctx context.Context, runID string, artifact Artifact, record ArtifactRecord) error
}

// Publisher pushes artifact notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Recorder receives crawl observations for metrics.
type Recorder interface {
	ObserveOutcome(site string, outcome Outcome, reason string)
	ObserveCheckpoint(err error)
	ObserveRender(site string, d time.Duration)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
