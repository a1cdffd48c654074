package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
	"github.com/JakeFAU/site-text-crawler/internal/identity"
	"github.com/JakeFAU/site-text-crawler/internal/storage/memory"
)

var scraped = time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)

func TestWriteStoresPageAndMetadata(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w, err := New(store, Config{})
	require.NoError(t, err)

	a := Build("https://ex.com/about", "About Us", "Line one\nLine two ü", scraped)
	rec, err := w.Write(context.Background(), a)
	require.NoError(t, err)

	filename := identity.Derive("https://ex.com/about", "About Us").Filename()
	assert.Equal(t, filename, rec.Filename)
	assert.Equal(t, "memory://pages/"+filename, rec.PageURI)
	assert.Equal(t, "memory://metadata/"+filename+".json", rec.MetadataURI)
	assert.Equal(t, 19, rec.ContentLength)

	page, ok := store.Get("pages/" + filename)
	require.True(t, ok)
	want := "Title: About Us\n" +
		"URL: https://ex.com/about\n" +
		"Scraped: 2024-05-01 09:30:00\n" +
		strings.Repeat("=", 80) + "\n\n" +
		"Line one\nLine two ü"
	assert.Equal(t, want, string(page))

	raw, ok := store.Get("metadata/" + filename + ".json")
	require.True(t, ok)
	var meta Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, Metadata{
		Title:         "About Us",
		URL:           "https://ex.com/about",
		Timestamp:     "2024-05-01 09:30:00",
		Filename:      filename,
		ContentLength: 19,
	}, meta)
}

func TestWritePrefix(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w, err := New(store, Config{Prefix: "/crawls/ex.com/"})
	require.NoError(t, err)

	a := Build("https://ex.com", "", "body", scraped)
	_, err = w.Write(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"crawls/ex.com/metadata/" + a.Filename + ".json",
		"crawls/ex.com/pages/" + a.Filename,
	}, store.Paths())
	assert.True(t, strings.HasPrefix(a.Filename, "homepage_"))
}

func TestWriteRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w, err := New(store, Config{})
	require.NoError(t, err)

	_, err = w.Write(context.Background(), Build("https://ex.com", "t", " \n\t", scraped))
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrPersistence))
	assert.Empty(t, store.Paths())
}

func TestWriteStoreFailure(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	store.FailWith(errors.New("read-only filesystem"))
	w, err := New(store, Config{})
	require.NoError(t, err)

	_, err = w.Write(context.Background(), Build("https://ex.com", "t", "body", scraped))
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrPersistence))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{})
	assert.Error(t, err)

	_, err = New(memory.NewBlobStore(), Config{PagesDir: "x", MetadataDir: "x"})
	assert.Error(t, err)
}
