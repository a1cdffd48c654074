package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

var rejectedSchemes = map[string]struct{}{
	"javascript": {},
	"mailto":     {},
	"tel":        {},
	"data":       {},
}

// ParseBase validates the crawl root. A missing scheme defaults to https and an empty
// path becomes "/", the form a resolved homepage link takes.
func ParseBase(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("base url is required")
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse base url: %w", err)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("base url %q has no host", raw)
	}
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return newTarget(u), nil
}

// Resolve joins candidate against base and scopes it to the base host.
// It returns ErrRejected for empty or non-fetchable hrefs and ErrOffDomain for other hosts.
func Resolve(base Target, candidate string) (Target, error) {
	href := strings.TrimSpace(candidate)
	if href == "" || href == "#" {
		return Target{}, ErrRejected
	}
	if i := strings.IndexByte(href, ':'); i > 0 {
		if _, bad := rejectedSchemes[strings.ToLower(href[:i])]; bad {
			return Target{}, ErrRejected
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return Target{}, fmt.Errorf("%w: parse %q: %v", ErrRejected, href, err)
	}
	if ref.Host != "" && ref.Host != base.Host {
		return Target{}, ErrOffDomain
	}
	baseURL, err := url.Parse(base.URL)
	if err != nil {
		return Target{}, fmt.Errorf("parse base url: %w", err)
	}
	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	if resolved.Path == "" && resolved.Opaque == "" {
		resolved.Path = "/"
	}
	switch strings.ToLower(resolved.Scheme) {
	case "http", "https":
	default:
		return Target{}, ErrRejected
	}
	return newTarget(resolved), nil
}

// FilterLinks resolves candidates in order, dropping rejected, off-domain and repeated links.
func FilterLinks(base Target, candidates []string) []Target {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Target, 0, len(candidates))
	for _, c := range candidates {
		t, err := Resolve(base, c)
		if err != nil {
			continue
		}
		if _, dup := seen[t.Key()]; dup {
			continue
		}
		seen[t.Key()] = struct{}{}
		out = append(out, t)
	}
	return out
}
