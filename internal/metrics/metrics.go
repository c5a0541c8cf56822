package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics for the arbitrage scanner and executor
var (
	// Venue REST metrics
	VenueRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arb_venue_request_duration_seconds",
			Help:    "Time to complete a venue REST request",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"venue", "endpoint"},
	)

	VenueRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_venue_request_errors_total",
			Help: "Total number of failed venue REST requests",
		},
		[]string{"venue", "endpoint"},
	)

	// Scan cycle metrics
	ScanCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arb_scan_cycle_duration_seconds",
			Help:    "Wall time of one full scan cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	CoinsScanned = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arb_coins_scanned",
			Help: "Number of coins in the scan universe",
		},
		[]string{"mode"},
	)

	SpreadsFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_spreads_found_total",
			Help: "Total number of spreads above threshold",
		},
		[]string{"mode"},
	)

	SpreadValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arb_spread_value_pct",
			Help: "Last observed spread in percent",
		},
		[]string{"coin", "long_venue", "short_venue"},
	)

	// Analysis metrics
	OpportunitiesAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_opportunities_analyzed_total",
			Help: "Total number of deep-analyzed opportunities",
		},
		[]string{"verdict"},
	)

	LiquidityRejects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_liquidity_rejects_total",
			Help: "Opportunities rejected by the depth check",
		},
		[]string{"venue"},
	)

	// News metrics
	NewsFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arb_news_fetch_duration_seconds",
			Help:    "Time to scan one news source",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	NewsItemsFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_news_items_found_total",
			Help: "Total number of matched news items",
		},
		[]string{"source", "category"},
	)

	NewsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arb_news_cache_hits_total",
			Help: "News scans served from the per-coin cache",
		},
	)

	// Execution metrics
	OrdersPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_orders_placed_total",
			Help: "Total number of orders sent to venues",
		},
		[]string{"venue", "side"},
	)

	OrderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_order_errors_total",
			Help: "Total number of failed order placements",
		},
		[]string{"venue"},
	)

	FillLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arb_fill_latency_seconds",
			Help:    "Time from order placement to confirmed fill",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"venue"},
	)

	PositionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arb_positions_open",
			Help: "Number of hedged positions currently monitored",
		},
	)

	// WebSocket metrics
	WSConnectionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arb_ws_connection_status",
			Help: "WebSocket connection status (1=connected, 0=disconnected)",
		},
		[]string{"stream"},
	)

	WSReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_ws_reconnects_total",
			Help: "Total number of WebSocket reconnection attempts",
		},
		[]string{"stream"},
	)

	// Sink metrics
	SinkPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_sink_publish_errors_total",
			Help: "Total number of failed sink publishes",
		},
		[]string{"sink"},
	)
)

// ObserveVenueRequest records the outcome of one venue REST call.
func ObserveVenueRequest(venue, endpoint string, ok bool, d time.Duration) {
	VenueRequestDuration.WithLabelValues(venue, endpoint).Observe(d.Seconds())
	if !ok {
		VenueRequestErrors.WithLabelValues(venue, endpoint).Inc()
	}
}

// RecordSpread records a spread observation above threshold.
func RecordSpread(mode, coin, longVenue, shortVenue string, pct float64) {
	SpreadsFound.WithLabelValues(mode).Inc()
	SpreadValue.WithLabelValues(coin, longVenue, shortVenue).Set(pct)
}

// RecordWSStatus flips the connection gauge for a stream.
func RecordWSStatus(stream string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	WSConnectionStatus.WithLabelValues(stream).Set(v)
}

// Server exposes /metrics and /health over HTTP.
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates a new metrics server
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

// Stop stops the metrics server gracefully
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
