// Package bybitws holds the three Bybit v5 WebSocket clients the executor
// uses: the public linear market stream, the private order/position stream
// and the trade stream for low-latency order entry.
package bybitws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"arbscan/internal/metrics"
	"arbscan/internal/venue"
)

const (
	WSPublicLinearURL = "wss://stream.bybit.com/v5/public/linear"

	readIdleTimeout     = 30 * time.Second
	reconnectBackoffMin = 500 * time.Millisecond
	reconnectBackoffMax = 15 * time.Second
)

// MarketState is the live top-of-book snapshot for one symbol, each field
// stamped with its local receive time.
type MarketState struct {
	BestBid    float64
	BestAsk    float64
	LastTrade  float64
	LastTicker float64

	BidAskAt time.Time
	TradeAt  time.Time
	TickerAt time.Time
}

// MarketStream maintains one public linear connection for a single symbol,
// subscribed to the level-1 book, trades and ticker topics.
type MarketStream struct {
	url    string
	symbol string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	state     MarketState

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewMarketStream creates a market stream for symbol (e.g. BTCUSDT).
func NewMarketStream(symbol string) *MarketStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &MarketStream{
		url:    WSPublicLinearURL,
		symbol: symbol,
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start connects and runs the read loop with reconnects until Stop.
func (ms *MarketStream) Start(ctx context.Context) error {
	if err := ms.connect(ctx); err != nil {
		return err
	}
	go ms.run()
	return nil
}

// Stop closes the connection and terminates the reconnect loop.
func (ms *MarketStream) Stop() {
	ms.cancel()
	close(ms.done)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.connected = false
	if ms.conn != nil {
		_ = ms.conn.Close()
	}
}

// State returns a copy of the current snapshot.
func (ms *MarketStream) State() MarketState {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.state
}

// IsReady reports whether bid/ask are fresher than maxAge and at least one
// of trade/ticker is too.
func (ms *MarketStream) IsReady(maxAge time.Duration) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	now := time.Now()
	if ms.state.BestBid <= 0 || ms.state.BestAsk <= 0 {
		return false
	}
	if now.Sub(ms.state.BidAskAt) > maxAge {
		return false
	}
	tradeFresh := !ms.state.TradeAt.IsZero() && now.Sub(ms.state.TradeAt) <= maxAge
	tickerFresh := !ms.state.TickerAt.IsZero() && now.Sub(ms.state.TickerAt) <= maxAge
	return tradeFresh || tickerFresh
}

func (ms *MarketStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, ms.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Bybit public WebSocket: %w", err)
	}
	sub := map[string]interface{}{
		"op": "subscribe",
		"args": []string{
			"orderbook.1." + ms.symbol,
			"publicTrade." + ms.symbol,
			"tickers." + ms.symbol,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	ms.mu.Lock()
	ms.conn = conn
	ms.connected = true
	ms.mu.Unlock()
	metrics.RecordWSStatus("public:"+ms.symbol, true)
	log.Info().Str("symbol", ms.symbol).Msg("Connected to Bybit public WebSocket")
	return nil
}

// run reads with an idle timeout; on timeout it pings once before declaring
// the connection dead, then reconnects with exponential backoff.
func (ms *MarketStream) run() {
	backoff := reconnectBackoffMin
	for {
		select {
		case <-ms.done:
			return
		default:
		}

		ms.mu.RLock()
		conn := ms.conn
		ms.mu.RUnlock()

		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				if pingErr := conn.WriteJSON(map[string]string{"op": "ping"}); pingErr == nil {
					_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
					if _, data, err = conn.ReadMessage(); err == nil {
						ms.handleMessage(data)
						backoff = reconnectBackoffMin
						continue
					}
				}
			}
			metrics.RecordWSStatus("public:"+ms.symbol, false)
			metrics.WSReconnects.WithLabelValues("public:" + ms.symbol).Inc()
			logClose(ms.symbol, err)
			conn.Close()

			select {
			case <-ms.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectBackoffMax {
				backoff = reconnectBackoffMax
			}
			if cerr := ms.connect(ms.ctx); cerr != nil {
				log.Warn().Str("symbol", ms.symbol).Err(cerr).Msg("Reconnect failed")
			}
			continue
		}
		backoff = reconnectBackoffMin
		ms.handleMessage(data)
	}
}

func (ms *MarketStream) handleMessage(data []byte) {
	var msg struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Topic == "" {
		return
	}
	now := time.Now()
	switch {
	case strings.HasPrefix(msg.Topic, "orderbook.1."):
		var book struct {
			Bids [][2]string `json:"b"`
			Asks [][2]string `json:"a"`
		}
		if json.Unmarshal(msg.Data, &book) != nil {
			return
		}
		ms.mu.Lock()
		if len(book.Bids) > 0 {
			if v := venue.F(book.Bids[0][0]); v > 0 {
				ms.state.BestBid = v
			}
		}
		if len(book.Asks) > 0 {
			if v := venue.F(book.Asks[0][0]); v > 0 {
				ms.state.BestAsk = v
			}
		}
		if len(book.Bids) > 0 || len(book.Asks) > 0 {
			ms.state.BidAskAt = now
		}
		ms.mu.Unlock()
	case strings.HasPrefix(msg.Topic, "publicTrade."):
		var trades []struct {
			Price string `json:"p"`
		}
		if json.Unmarshal(msg.Data, &trades) != nil || len(trades) == 0 {
			return
		}
		ms.mu.Lock()
		ms.state.LastTrade = venue.F(trades[len(trades)-1].Price)
		ms.state.TradeAt = now
		ms.mu.Unlock()
	case strings.HasPrefix(msg.Topic, "tickers."):
		var tick struct {
			LastPrice string `json:"lastPrice"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
		}
		if json.Unmarshal(msg.Data, &tick) != nil {
			return
		}
		ms.mu.Lock()
		if v := venue.F(tick.LastPrice); v > 0 {
			ms.state.LastTicker = v
			ms.state.TickerAt = now
		}
		if v := venue.F(tick.Bid1Price); v > 0 {
			ms.state.BestBid = v
			ms.state.BidAskAt = now
		}
		if v := venue.F(tick.Ask1Price); v > 0 {
			ms.state.BestAsk = v
			ms.state.BidAskAt = now
		}
		ms.mu.Unlock()
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}
	return false
}

func logClose(symbol string, err error) {
	if ce, ok := err.(*websocket.CloseError); ok {
		log.Warn().Str("symbol", symbol).Int("code", ce.Code).Str("text", ce.Text).
			Msg("WebSocket closed")
		return
	}
	log.Warn().Str("symbol", symbol).Err(err).Msg("WebSocket read failed")
}
