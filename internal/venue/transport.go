package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"arbscan/internal/metrics"
)

// TransportConfig tunes a per-venue HTTP transport.
type TransportConfig struct {
	Venue          ID
	Hosts          []string // primary first; extra hosts are failover domains
	Timeout        time.Duration
	ConnectTimeout time.Duration
	Retries        int           // extra attempts per host on transient errors
	Backoff        time.Duration // backoff * (attempt+1) between retries
	MaxInFlight    int           // 0 = unbounded
	RatePerSec     float64       // 0 = unlimited
	UserAgent      string
}

// Transport is one pooled HTTP client per venue with bounded concurrency,
// transient-error retries and domain failover. Safe for concurrent use.
type Transport struct {
	venue   ID
	hosts   []string
	client  *http.Client
	retries int
	backoff time.Duration
	sem     chan struct{}
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	ua      string

	mu         sync.Mutex
	blockedLog map[int]bool // status -> already warned this session
}

// NewTransport builds a transport from config, filling unset fields with defaults.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	t := &Transport{
		venue:   cfg.Venue,
		hosts:   cfg.Hosts,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		ua:      cfg.UserAgent,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		blockedLog: make(map[int]bool),
	}
	if cfg.MaxInFlight > 0 {
		t.sem = make(chan struct{}, cfg.MaxInFlight)
	}
	if cfg.RatePerSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), int(cfg.RatePerSec)+1)
	}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(cfg.Venue),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 8
		},
	})
	return t
}

// Close releases idle pooled connections.
func (t *Transport) Close() {
	if tr, ok := t.client.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
}

// GetJSON issues a GET against path (joined with each configured host in
// order), decoding the body into out. Transient failures are retried up to
// Retries times per host; 403/429 are surfaced immediately as tagged errors.
func (t *Transport) GetJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	return t.do(ctx, http.MethodGet, path, params, nil, nil, out)
}

// Do issues a request with arbitrary method, body and extra headers.
func (t *Transport) Do(ctx context.Context, method, path string, params url.Values, body []byte, headers map[string]string, out interface{}) error {
	return t.do(ctx, method, path, params, body, headers, out)
}

func (t *Transport) do(ctx context.Context, method, path string, params url.Values, body []byte, headers map[string]string, out interface{}) error {
	if t.sem != nil {
		select {
		case t.sem <- struct{}{}:
			defer func() { <-t.sem }()
		case <-ctx.Done():
			return NewError(t.venue, KindTransient, path, ctx.Err())
		}
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return NewError(t.venue, KindTransient, path, err)
		}
	}

	var lastErr error
	attempts := t.retries + 1
	for _, host := range t.hosts {
		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(t.backoff * time.Duration(attempt)):
				case <-ctx.Done():
					return NewError(t.venue, KindTransient, path, ctx.Err())
				}
			}
			err := t.once(ctx, host, method, path, params, body, headers, out)
			if err == nil {
				return nil
			}
			lastErr = err
			if !IsRetryable(err) {
				return err
			}
		}
	}
	return lastErr
}

func (t *Transport) once(ctx context.Context, host, method, path string, params url.Values, body []byte, headers map[string]string, out interface{}) error {
	reqURL := host + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	start := time.Now()
	res, err := t.breaker.Execute(func() (interface{}, error) {
		var rd io.Reader
		if body != nil {
			rd = strings.NewReader(string(body))
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, rd)
		if err != nil {
			return nil, NewError(t.venue, KindProtocol, path, err)
		}
		req.Header.Set("User-Agent", t.ua)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return nil, NewError(t.venue, KindTransient, path, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, NewError(t.venue, KindTransient, path, err)
		}
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			t.warnBlockedOnce(resp.StatusCode, path)
			kind := KindWAFBlocked
			if resp.StatusCode == http.StatusTooManyRequests {
				kind = KindRateLimited
			}
			return nil, NewError(t.venue, kind, path, fmt.Errorf("http %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, NewError(t.venue, KindProtocol, path, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(data), 200)))
		}
		return data, nil
	})
	metrics.ObserveVenueRequest(string(t.venue), path, err == nil, time.Since(start))
	if err != nil {
		var ve *Error
		if errors.As(err, &ve) {
			return ve
		}
		// breaker open counts as transient: the venue gets a cooldown
		return NewError(t.venue, KindTransient, path, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.([]byte), out); err != nil {
		log.Warn().Str("venue", string(t.venue)).Str("path", path).Err(err).Msg("JSON decode failed")
		return NewError(t.venue, KindProtocol, path, err)
	}
	return nil
}

// warnBlockedOnce logs one warning per status per session and stays quiet
// afterwards so WAF storms do not flood the log.
func (t *Transport) warnBlockedOnce(status int, path string) {
	t.mu.Lock()
	seen := t.blockedLog[status]
	t.blockedLog[status] = true
	t.mu.Unlock()
	if seen {
		return
	}
	log.Warn().
		Str("venue", string(t.venue)).
		Str("path", path).
		Int("status", status).
		Msg("Possible rate-limit/WAF block; suppressing further warnings")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
