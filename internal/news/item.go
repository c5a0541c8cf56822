// Package news fetches venue announcements, matches delisting and security
// signals for a coin, and caches the results per (coin, venue).
package news

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Category classifies a matched item.
type Category string

const (
	CategoryDelisting Category = "delisting"
	CategorySecurity  Category = "security"
)

// Item is one announcement or article candidate.
type Item struct {
	Title       string
	URL         string
	Body        string
	Source      string // venue or "x"
	PublishedAt time.Time
	// Inferred marks items whose date could not be extracted; they sort
	// after real-dated items and never pass the lookback filter alone.
	Inferred bool
	Tags     []string
}

// NormalizeURL strips query and fragment, preserving scheme, host and path.
// It is idempotent.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		// fall back to manual stripping for scheme-less fragments
		s := strings.TrimSpace(raw)
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
		return s
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// dedupKey is the identity used to collapse duplicates: the normalized URL,
// or the first 200 characters of the title when the URL is empty.
func dedupKey(it Item) string {
	if it.URL != "" {
		return NormalizeURL(it.URL)
	}
	title := strings.TrimSpace(it.Title)
	if len(title) > 200 {
		title = title[:200]
	}
	return "title:" + title
}

// Dedup removes items sharing a normalized URL (or title fallback), keeping
// the first occurrence.
func Dedup(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		key := dedupKey(it)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// SortNewestFirst orders items newest-first; items with inferred dates are
// stable-sorted after all real-dated ones.
func SortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Inferred != items[j].Inferred {
			return !items[i].Inferred
		}
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}
