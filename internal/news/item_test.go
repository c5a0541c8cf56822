package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/a/b?utm=1#frag", "https://example.com/a/b"},
		{"https://example.com/a/b", "https://example.com/a/b"},
		{"  https://example.com/x?y=1 ", "https://example.com/x"},
		{"/relative/path?q=1", "/relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := NormalizeURL(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, NormalizeURL(got), "idempotent")
	}
}

func TestDedup(t *testing.T) {
	items := []Item{
		{Title: "A", URL: "https://e.com/1?a=1"},
		{Title: "B", URL: "https://e.com/1#x"}, // same after normalization
		{Title: "C", URL: "https://e.com/2"},
		{Title: "Same title", URL: ""},
		{Title: "Same title", URL: ""},
	}
	out := Dedup(items)
	assert.Len(t, out, 3)
	assert.Equal(t, "A", out[0].Title, "first occurrence wins")
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	items := []Item{
		{Title: "inferred-1", Inferred: true, PublishedAt: base.Add(72 * time.Hour)},
		{Title: "old", PublishedAt: base},
		{Title: "new", PublishedAt: base.Add(48 * time.Hour)},
		{Title: "inferred-2", Inferred: true},
	}
	SortNewestFirst(items)
	assert.Equal(t, "new", items[0].Title)
	assert.Equal(t, "old", items[1].Title)
	// inferred items always sort after real-dated ones, keeping their order
	assert.Equal(t, "inferred-1", items[2].Title)
	assert.Equal(t, "inferred-2", items[3].Title)
}
