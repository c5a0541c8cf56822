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

	"arbscan/internal/metrics"
	"arbscan/internal/venue"
)

const (
	bybitAnnouncementsURL = "https://api.bybit.com/v5/announcements/index"

	maxPrefetchPerScan = 20
	// announcement list pages are newest-first; stop paging once entries
	// cross cutoff = now - daysBack - 6h
	cutoffSlack = 6 * time.Hour

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// listSources maps each venue to its announcement category pages. Bybit is
// absent: it is served through the announcements API instead of scraping.
var listSources = map[venue.ID][]string{
	venue.MEXC:    {"https://www.mexc.com/support/categories/360000254192"},
	venue.Gate:    {"https://www.gate.io/announcements"},
	venue.XT:      {"https://xtsupport.zendesk.com/hc/en-us"},
	venue.Binance: {"https://www.binance.com/en/support/announcement/c-161", "https://www.binance.com/en/support/announcement/c-48"},
	venue.Bitget:  {"https://www.bitget.com/support/sections/12508313443290"},
	venue.OKX:     {"https://www.okx.com/help/category/announcements"},
	venue.BingX:   {"https://bingx.com/en-us/support/notice-center"},
	venue.LBank:   {"https://www.lbank.com/support/announcement"},
}

// Report is the per-(coin,venue) risk verdict input. Security items are only
// looked up when no delisting signal was found.
type Report struct {
	Delisting []Item
	Security  []Item
}

// HasDelisting reports a delisting signal.
func (r *Report) HasDelisting() bool { return r != nil && len(r.Delisting) > 0 }

// HasSecurity reports a security-incident signal.
func (r *Report) HasSecurity() bool { return r != nil && len(r.Security) > 0 }

type cacheEntry struct {
	report  *Report
	fetched time.Time
}

// Engine fetches and matches announcements. Safe for concurrent use; scan
// results are cached per (coin, venue) for the configured TTL.
type Engine struct {
	client   *http.Client
	daysBack int
	cacheTTL time.Duration
	cookie   string // optional Binance WAF bypass cookie
	x        *XClient

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// Options configures the engine.
type Options struct {
	DaysBack      int
	CacheTTL      time.Duration
	BinanceCookie string
	X             *XClient // nil disables the X fallback
}

// NewEngine creates a news engine.
func NewEngine(opts Options) *Engine {
	if opts.DaysBack <= 0 {
		opts.DaysBack = 7
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 180 * time.Second
	}
	return &Engine{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		daysBack: opts.DaysBack,
		cacheTTL: opts.CacheTTL,
		cookie:   opts.BinanceCookie,
		x:        opts.X,
		cache:    make(map[string]cacheEntry),
	}
}

// CheckCoin returns the risk report for coin on a venue, served from cache
// within the TTL. Failures degrade to an empty report; a scan error never
// blocks the evaluator.
func (e *Engine) CheckCoin(ctx context.Context, coin string, v venue.ID) *Report {
	key := strings.ToUpper(coin) + "|" + string(v)
	e.mu.Lock()
	if entry, ok := e.cache[key]; ok && time.Since(entry.fetched) < e.cacheTTL {
		e.mu.Unlock()
		metrics.NewsCacheHits.Inc()
		return entry.report
	}
	e.mu.Unlock()

	report := e.scan(ctx, coin, v)

	e.mu.Lock()
	e.cache[key] = cacheEntry{report: report, fetched: time.Now()}
	e.mu.Unlock()
	return report
}

func (e *Engine) scan(ctx context.Context, coin string, v venue.ID) *Report {
	start := time.Now()
	defer func() {
		metrics.NewsFetchDuration.WithLabelValues(string(v)).Observe(time.Since(start).Seconds())
	}()

	var candidates []Item
	var err error
	if v == venue.Bybit {
		candidates, err = e.fetchBybitAnnouncements(ctx)
	} else {
		candidates, err = e.fetchListings(ctx, v)
	}
	if err != nil {
		log.Warn().Str("venue", string(v)).Err(err).Msg("News fetch failed")
		return &Report{}
	}
	candidates = Dedup(candidates)
	SortNewestFirst(candidates)

	budget := maxPrefetchPerScan
	report := &Report{
		Delisting: e.match(ctx, candidates, coin, CategoryDelisting, &budget),
	}
	if len(report.Delisting) > 0 {
		metrics.NewsItemsFound.WithLabelValues(string(v), string(CategoryDelisting)).
			Add(float64(len(report.Delisting)))
		return report
	}
	report.Security = e.match(ctx, candidates, coin, CategorySecurity, &budget)
	if len(report.Security) > 0 {
		metrics.NewsItemsFound.WithLabelValues(string(v), string(CategorySecurity)).
			Add(float64(len(report.Security)))
	}
	if !report.HasDelisting() && !report.HasSecurity() && e.x != nil {
		e.probeX(ctx, coin, report)
	}
	return report
}

// match keeps candidates that mention the coin AND carry a hard keyword for
// the category (or an explicit delisting tag). When exactly one signal is
// present on the card and the prefetch budget allows, the full article is
// fetched and the pair re-evaluated.
func (e *Engine) match(ctx context.Context, candidates []Item, coin string, cat Category, budget *int) []Item {
	hasKeyword := HasDelistingKeyword
	if cat == CategorySecurity {
		hasKeyword = HasSecurityKeyword
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -e.daysBack).Add(-cutoffSlack)

	var out []Item
	for _, it := range candidates {
		if !it.Inferred && it.PublishedAt.Before(cutoff) {
			continue
		}
		if cat == CategoryDelisting && HasDelistingTag(it.Tags) && MentionsCoin(it.Title+" "+it.Body, coin) {
			out = append(out, it)
			continue
		}
		text := it.Title + " " + it.Body
		mentioned := MentionsCoin(text, coin)
		keyword := hasKeyword(text)
		if mentioned != keyword && *budget > 0 && it.URL != "" {
			*budget--
			if full := e.prefetch(ctx, &it); full {
				text = it.Title + " " + it.Body
				mentioned = MentionsCoin(text, coin)
				keyword = hasKeyword(text)
			}
		}
		if mentioned && keyword {
			out = append(out, it)
		}
	}
	return out
}

// prefetch fetches the article page, filling in a real date and a 2 kB body
// snippet. The normalized URL serves as a retry target on error statuses.
func (e *Engine) prefetch(ctx context.Context, it *Item) bool {
	body, err := e.get(ctx, it.URL)
	if err != nil {
		if norm := NormalizeURL(it.URL); norm != it.URL {
			body, err = e.get(ctx, norm)
		}
		if err != nil {
			log.Debug().Str("url", it.URL).Err(err).Msg("Article prefetch failed")
			return false
		}
	}
	root, err := parseDocument(strings.NewReader(body))
	if err != nil {
		return false
	}
	if t, ok := extractDate(root); ok {
		it.PublishedAt = t
		it.Inferred = false
	}
	if text := extractBody(root); text != "" {
		it.Body = text
	}
	return true
}

func (e *Engine) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if e.cookie != "" && strings.Contains(rawURL, "binance.com") {
		req.Header.Set("Cookie", e.cookie)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http %d for %s", resp.StatusCode, rawURL)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// fetchListings scrapes the venue's announcement category pages into
// undated card candidates.
func (e *Engine) fetchListings(ctx context.Context, v venue.ID) ([]Item, error) {
	sources := listSources[v]
	if len(sources) == 0 {
		return nil, nil
	}
	var items []Item
	var lastErr error
	for _, src := range sources {
		body, err := e.get(ctx, src)
		if err != nil {
			lastErr = err
			continue
		}
		base, err := url.Parse(src)
		if err != nil {
			continue
		}
		root, err := parseDocument(strings.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		for _, a := range extractAnchors(root, base) {
			it := Item{
				Title:       a.text,
				Body:        a.body,
				URL:         a.href,
				Source:      string(v),
				PublishedAt: time.Now().UTC(),
				Inferred:    true,
			}
			// card-level dates keep old entries out of the lookback window
			if a.dated {
				it.PublishedAt = a.published
				it.Inferred = false
			}
			items = append(items, it)
		}
	}
	if len(items) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return items, nil
}

// fetchBybitAnnouncements pages the announcements API newest-first,
// stopping at the lookback cutoff.
func (e *Engine) fetchBybitAnnouncements(ctx context.Context) ([]Item, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -e.daysBack).Add(-cutoffSlack)
	var items []Item
	total := -1
	for page := 1; page <= 10; page++ {
		params := url.Values{}
		params.Set("locale", "en-US")
		params.Set("limit", "50")
		params.Set("page", strconv.Itoa(page))
		body, err := e.get(ctx, bybitAnnouncementsURL+"?"+params.Encode())
		if err != nil {
			return items, err
		}
		var resp struct {
			RetCode int `json:"retCode"`
			Result  struct {
				Total int `json:"total"`
				List  []struct {
					Title       string `json:"title"`
					Description string `json:"description"`
					URL         string `json:"url"`
					Type        struct {
						Key string `json:"key"`
					} `json:"type"`
					Tags          []string `json:"tags"`
					DateTimestamp int64    `json:"dateTimestamp"` // epoch ms
				} `json:"list"`
			} `json:"result"`
		}
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return items, err
		}
		if resp.RetCode != 0 || len(resp.Result.List) == 0 {
			break
		}
		total = resp.Result.Total
		crossed := false
		for _, a := range resp.Result.List {
			published := time.UnixMilli(venue.NormalizeEpochMS(a.DateTimestamp)).UTC()
			if !published.IsZero() && published.Before(cutoff) {
				crossed = true
				continue
			}
			tags := a.Tags
			if a.Type.Key != "" {
				tags = append(tags, a.Type.Key)
			}
			items = append(items, Item{
				Title:       a.Title,
				Body:        a.Description,
				URL:         a.URL,
				Source:      string(venue.Bybit),
				PublishedAt: published,
				Tags:        tags,
			})
		}
		if crossed || (total >= 0 && len(items) >= total) {
			break
		}
	}
	return items, nil
}

// probeX runs the optional X search as a last resort when announcements
// produced nothing.
func (e *Engine) probeX(ctx context.Context, coin string, report *Report) {
	if items, err := e.x.FindDelisting(ctx, coin); err == nil && len(items) > 0 {
		report.Delisting = items
		return
	}
	if items, err := e.x.FindSecurity(ctx, coin); err == nil && len(items) > 0 {
		report.Security = items
	}
}
