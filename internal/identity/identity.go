// Package identity derives deterministic artifact names from a URL and page title.
package identity

import (
	"crypto/md5" // #nosec G501 -- naming digest, not a security boundary.
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"
)

const (
	digestLen    = 8
	maxStemRunes = 50
	fallbackStem = "homepage"
)

// Identity names one artifact.
type Identity struct {
	Digest string
	Stem   string
}

// Filename returns the page file name, "{stem}_{digest}.txt".
func (i Identity) Filename() string {
	return i.Stem + "_" + i.Digest + ".txt"
}

// Derive computes the identity for rawURL and title. The digest depends only on the
// exact URL string, so the same URL always maps to the same file.
func Derive(rawURL, title string) Identity {
	return Identity{
		Digest: Digest(rawURL),
		Stem:   stem(rawURL, title),
	}
}

// Digest returns the first eight hex characters of the URL's MD5 sum.
func Digest(rawURL string) string {
	sum := md5.Sum([]byte(rawURL)) // #nosec G401
	return hex.EncodeToString(sum[:])[:digestLen]
}

func stem(rawURL, title string) string {
	if title != "" {
		return titleStem(title)
	}
	return pathStem(rawURL)
}

func titleStem(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimRightFunc(b.String(), unicode.IsSpace)
	runes := []rune(cleaned)
	if len(runes) > maxStemRunes {
		runes = runes[:maxStemRunes]
	}
	return string(runes)
}

func pathStem(rawURL string) string {
	path := ""
	if u, err := url.Parse(rawURL); err == nil {
		path = u.EscapedPath()
	}
	name := strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")
	if name == "" {
		return fallbackStem
	}
	return name
}
