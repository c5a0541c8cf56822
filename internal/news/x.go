package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	xSearchURL = "https://api.x.com/2/tweets/search/recent"

	// the recent-search endpoint only serves the last 7 days
	xMaxLookback = 7 * 24 * time.Hour
)

// XClient queries the X recent-search API as a risk-signal fallback.
// Results are cached per (query, start_time) so repeated evaluator calls in
// one scan cycle cost a single request.
type XClient struct {
	bearer     string
	maxResults int
	cacheTTL   time.Duration
	client     *http.Client

	mu    sync.Mutex
	cache map[string]xCacheEntry
}

type xCacheEntry struct {
	items   []Item
	fetched time.Time
}

// NewXClient creates the client; bearer must be non-empty.
func NewXClient(bearer string, maxResults int, cacheTTL time.Duration) *XClient {
	if maxResults <= 0 {
		maxResults = 25
	}
	if cacheTTL <= 0 {
		cacheTTL = 180 * time.Second
	}
	return &XClient{
		bearer:     bearer,
		maxResults: maxResults,
		cacheTTL:   cacheTTL,
		client:     &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[string]xCacheEntry),
	}
}

// FindDelisting searches for delisting chatter about coin.
func (x *XClient) FindDelisting(ctx context.Context, coin string) ([]Item, error) {
	return x.search(ctx, coin, "(delist OR delisting OR \"remove from trading\")")
}

// FindSecurity searches for hack/exploit chatter about coin.
func (x *XClient) FindSecurity(ctx context.Context, coin string) ([]Item, error) {
	return x.search(ctx, coin, "(hack OR hacked OR exploit OR breach OR \"stolen funds\")")
}

func (x *XClient) search(ctx context.Context, coin, signalClause string) ([]Item, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	query := fmt.Sprintf("(%s OR %sUSDT OR \"%s/USDT\") %s (bybit OR gate OR mexc OR binance OR okx OR bitget) -is:retweet",
		coin, coin, coin, signalClause)
	// truncate start_time to the hour so consecutive calls share a cache key
	start := time.Now().UTC().Add(-xMaxLookback).Truncate(time.Hour)
	key := query + "|" + start.Format(time.RFC3339)

	x.mu.Lock()
	if entry, ok := x.cache[key]; ok && time.Since(entry.fetched) < x.cacheTTL {
		x.mu.Unlock()
		return entry.items, nil
	}
	x.mu.Unlock()

	params := url.Values{}
	params.Set("query", query)
	params.Set("start_time", start.Format(time.RFC3339))
	params.Set("max_results", strconv.Itoa(x.maxResults))
	params.Set("tweet.fields", "created_at")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, xSearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+x.bearer)
	resp, err := x.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("x api http %d: %s", resp.StatusCode, string(body))
	}
	var payload struct {
		Data []struct {
			ID        string    `json:"id"`
			Text      string    `json:"text"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(payload.Data))
	for _, tw := range payload.Data {
		if !MentionsCoin(tw.Text, coin) {
			continue
		}
		items = append(items, Item{
			Title:       tw.Text,
			URL:         "https://x.com/i/web/status/" + tw.ID,
			Source:      "x",
			PublishedAt: tw.CreatedAt.UTC(),
		})
	}
	log.Debug().Str("coin", coin).Int("items", len(items)).Msg("X search completed")

	x.mu.Lock()
	x.cache[key] = xCacheEntry{items: items, fetched: time.Now()}
	x.mu.Unlock()
	return items, nil
}
