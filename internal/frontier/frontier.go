// Package frontier builds the ordered, deduplicated work list for a single run.
package frontier

import "github.com/JakeFAU/site-text-crawler/internal/crawler"

// Frontier is a FIFO over targets seeded once at the start of a run. It is not persisted.
type Frontier struct {
	items []crawler.Target
	next  int
}

// Seed returns [base] ++ discovered with duplicates removed by Target.Key, truncated to
// limit entries. A limit <= 0 means no truncation.
func Seed(base crawler.Target, discovered []crawler.Target, limit int) []crawler.Target {
	seen := make(map[string]struct{}, len(discovered)+1)
	out := make([]crawler.Target, 0, len(discovered)+1)
	add := func(t crawler.Target) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		if _, dup := seen[t.Key()]; dup {
			return true
		}
		seen[t.Key()] = struct{}{}
		out = append(out, t)
		return true
	}
	add(base)
	for _, t := range discovered {
		if !add(t) {
			break
		}
	}
	return out
}

// New seeds a Frontier. See Seed.
func New(base crawler.Target, discovered []crawler.Target, limit int) *Frontier {
	return &Frontier{items: Seed(base, discovered, limit)}
}

// Next pops the next target in insertion order.
func (f *Frontier) Next() (crawler.Target, bool) {
	if f.next >= len(f.items) {
		return crawler.Target{}, false
	}
	t := f.items[f.next]
	f.next++
	return t, true
}

// Len returns the total number of seeded targets.
func (f *Frontier) Len() int {
	return len(f.items)
}

// Position returns how many targets have been popped.
func (f *Frontier) Position() int {
	return f.next
}
