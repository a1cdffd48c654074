// Package artifact writes extracted page text and its metadata record.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
	"github.com/JakeFAU/site-text-crawler/internal/identity"
)

const (
	pageContentType = "text/plain; charset=utf-8"
	metaContentType = "application/json"
	separatorWidth  = 80
)

// Config controls where artifacts are written inside the blob store.
type Config struct {
	Prefix      string
	PagesDir    string
	MetadataDir string
}

// Metadata is the JSON record stored next to each page file.
type Metadata struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Timestamp     string `json:"timestamp"`
	Filename      string `json:"filename"`
	ContentLength int    `json:"content_length"`
}

// Writer implements crawler.ArtifactWriter over a BlobStore.
type Writer struct {
	store crawler.BlobStore
	cfg   Config
}

// New returns a Writer. Empty directory names default to "pages" and "metadata".
func New(store crawler.BlobStore, cfg Config) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.PagesDir == "" {
		cfg.PagesDir = "pages"
	}
	if cfg.MetadataDir == "" {
		cfg.MetadataDir = "metadata"
	}
	if cfg.PagesDir == cfg.MetadataDir {
		return nil, fmt.Errorf("pages and metadata directories must differ")
	}
	return &Writer{store: store, cfg: cfg}, nil
}

// Build assembles an artifact for a successfully extracted page.
func Build(url, title, body string, scrapedAt time.Time) crawler.Artifact {
	id := identity.Derive(url, title)
	return crawler.Artifact{
		Title:     title,
		Body:      body,
		URL:       url,
		ScrapedAt: scrapedAt,
		Digest:    id.Digest,
		Filename:  id.Filename(),
	}
}

// Write stores the page file, then its metadata. Both must succeed.
func (w *Writer) Write(ctx context.Context, a crawler.Artifact) (crawler.ArtifactRecord, error) {
	if strings.TrimSpace(a.Body) == "" {
		return crawler.ArtifactRecord{}, fmt.Errorf("%w: empty body for %s", crawler.ErrPersistence, a.URL)
	}
	if a.Filename == "" {
		a.Filename = identity.Derive(a.URL, a.Title).Filename()
	}
	stamp := a.ScrapedAt.Format(crawler.TimestampLayout)

	pageURI, err := w.store.PutObject(ctx, w.pagePath(a.Filename), pageContentType, bytes.NewReader(renderPage(a, stamp)))
	if err != nil {
		return crawler.ArtifactRecord{}, fmt.Errorf("%w: page %s: %v", crawler.ErrPersistence, a.Filename, err)
	}

	meta := Metadata{
		Title:         a.Title,
		URL:           a.URL,
		Timestamp:     stamp,
		Filename:      a.Filename,
		ContentLength: utf8.RuneCountInString(a.Body),
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return crawler.ArtifactRecord{}, fmt.Errorf("%w: marshal metadata: %v", crawler.ErrPersistence, err)
	}
	metaURI, err := w.store.PutObject(ctx, w.metadataPath(a.Filename), metaContentType, bytes.NewReader(payload))
	if err != nil {
		return crawler.ArtifactRecord{}, fmt.Errorf("%w: metadata %s: %v", crawler.ErrPersistence, a.Filename, err)
	}

	return crawler.ArtifactRecord{
		Filename:      a.Filename,
		PageURI:       pageURI,
		MetadataURI:   metaURI,
		ContentLength: meta.ContentLength,
	}, nil
}

func (w *Writer) pagePath(filename string) string {
	return path.Join(strings.Trim(w.cfg.Prefix, "/"), w.cfg.PagesDir, filename)
}

func (w *Writer) metadataPath(filename string) string {
	return path.Join(strings.Trim(w.cfg.Prefix, "/"), w.cfg.MetadataDir, filename+".json")
}

func renderPage(a crawler.Artifact, stamp string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "URL: %s\n", a.URL)
	fmt.Fprintf(&b, "Scraped: %s\n", stamp)
	b.WriteString(strings.Repeat("=", separatorWidth))
	b.WriteString("\n\n")
	b.WriteString(a.Body)
	return b.Bytes()
}
