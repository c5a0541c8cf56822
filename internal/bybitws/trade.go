package bybitws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
)

const (
	WSTradeURL = "wss://stream.bybit.com/v5/trade"

	tradePingFreq   = 20 * time.Second
	tradeReqTimeout = 10 * time.Second
)

// TradeResponse is the venue's answer to one order.create request.
type TradeResponse struct {
	ReqID   string
	RetCode int
	RetMsg  string
	OrderID string
	Latency time.Duration
}

// TradeStream is the v5 trade WebSocket used for low-latency order entry.
// Each request carries a UUID reqId; responses are correlated through a
// pending map, and every pending request fails fast on disconnect.
type TradeStream struct {
	url        string
	apiKey     string
	apiSecret  string
	recvWindow int64

	mu            sync.RWMutex
	conn          *websocket.Conn
	connected     bool
	authenticated bool

	pendingMu sync.Mutex
	pending   map[string]chan *TradeResponse

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTradeStream creates the trade stream client.
func NewTradeStream(apiKey, apiSecret string) *TradeStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &TradeStream{
		url:        WSTradeURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: 5000,
		pending:    make(map[string]chan *TradeResponse),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start connects, authenticates and launches the reader and ping loops.
func (ts *TradeStream) Start(ctx context.Context) error {
	if err := ts.connect(ctx); err != nil {
		return err
	}
	go ts.run()
	go ts.pingLoop()

	// wait for auth before accepting orders
	deadline := time.After(tradeReqTimeout)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			return fmt.Errorf("trade stream auth timeout")
		case <-tick.C:
			ts.mu.RLock()
			ok := ts.authenticated
			ts.mu.RUnlock()
			if ok {
				return nil
			}
		}
	}
}

// Stop shuts the stream down and fails all pending requests.
func (ts *TradeStream) Stop() {
	ts.cancel()
	close(ts.done)
	ts.failPending(fmt.Errorf("trade stream stopped"))
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.connected = false
	if ts.conn != nil {
		_ = ts.conn.Close()
	}
}

// IsConnected reports whether the stream is ready for orders.
func (ts *TradeStream) IsConnected() bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.connected && ts.authenticated
}

func (ts *TradeStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, ts.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Bybit trade WebSocket: %w", err)
	}
	ts.mu.Lock()
	ts.conn = conn
	ts.connected = true
	ts.authenticated = false
	ts.mu.Unlock()

	auth := wsAuthArgs(ts.apiKey, ts.apiSecret)
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send auth: %w", err)
	}
	log.Info().Msg("Connected to Bybit trade WebSocket")
	return nil
}

// CreateOrder sends order.create and waits for the correlated response.
func (ts *TradeStream) CreateOrder(ctx context.Context, order map[string]interface{}) (*TradeResponse, error) {
	if !ts.IsConnected() {
		return nil, venue.NewError(venue.Bybit, venue.KindTransient, "ws order.create",
			fmt.Errorf("trade stream not connected"))
	}
	reqID := uuid.NewString()
	start := time.Now()
	req := map[string]interface{}{
		"reqId": reqID,
		"header": map[string]string{
			"X-BAPI-TIMESTAMP":   strconv.FormatInt(time.Now().UnixMilli(), 10),
			"X-BAPI-RECV-WINDOW": strconv.FormatInt(ts.recvWindow, 10),
			"Referer":            "arbscan",
		},
		"op":   "order.create",
		"args": []interface{}{order},
	}

	ch := make(chan *TradeResponse, 1)
	ts.pendingMu.Lock()
	ts.pending[reqID] = ch
	ts.pendingMu.Unlock()
	defer func() {
		ts.pendingMu.Lock()
		delete(ts.pending, reqID)
		ts.pendingMu.Unlock()
	}()

	ts.mu.RLock()
	conn := ts.conn
	ts.mu.RUnlock()
	if err := conn.WriteJSON(req); err != nil {
		return nil, venue.NewError(venue.Bybit, venue.KindTransient, "ws order.create", err)
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, venue.NewError(venue.Bybit, venue.KindTransient, "ws order.create",
				fmt.Errorf("connection lost"))
		}
		resp.Latency = time.Since(start)
		if resp.RetCode != 0 {
			return resp, venue.NewError(venue.Bybit, venue.KindProtocol, "ws order.create",
				fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg))
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(tradeReqTimeout):
		return nil, venue.NewError(venue.Bybit, venue.KindTransient, "ws order.create",
			fmt.Errorf("response timeout"))
	}
}

func (ts *TradeStream) pingLoop() {
	ticker := time.NewTicker(tradePingFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ts.done:
			return
		case <-ticker.C:
			ts.mu.RLock()
			conn := ts.conn
			connected := ts.connected
			ts.mu.RUnlock()
			if connected && conn != nil {
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}
}

func (ts *TradeStream) run() {
	backoff := reconnectBackoffMin
	for {
		select {
		case <-ts.done:
			return
		default:
		}

		ts.mu.RLock()
		conn := ts.conn
		ts.mu.RUnlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			logClose("trade", err)
			conn.Close()
			ts.mu.Lock()
			ts.connected = false
			ts.authenticated = false
			ts.mu.Unlock()
			ts.failPending(err)

			select {
			case <-ts.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectBackoffMax {
				backoff = reconnectBackoffMax
			}
			if cerr := ts.connect(ts.ctx); cerr != nil {
				log.Warn().Err(cerr).Msg("Trade stream reconnect failed")
			}
			continue
		}
		backoff = reconnectBackoffMin
		ts.handleMessage(data)
	}
}

// failPending delivers nil to every waiter so callers do not hang across a
// reconnect; orders in flight must be re-checked via REST.
func (ts *TradeStream) failPending(err error) {
	ts.pendingMu.Lock()
	defer ts.pendingMu.Unlock()
	for reqID, ch := range ts.pending {
		select {
		case ch <- nil:
		default:
		}
		delete(ts.pending, reqID)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed all pending trade requests")
	}
}

func (ts *TradeStream) handleMessage(data []byte) {
	var msg struct {
		Op      string `json:"op"`
		ReqID   string `json:"reqId"`
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Data    struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	switch msg.Op {
	case "auth":
		ok := (msg.Success != nil && *msg.Success) || msg.RetCode == 0
		ts.mu.Lock()
		ts.authenticated = ok
		ts.mu.Unlock()
		if !ok {
			log.Error().Str("msg", msg.RetMsg).Msg("Bybit trade WebSocket auth rejected")
		}
	case "pong", "ping":
	default:
		if msg.ReqID == "" {
			return
		}
		resp := &TradeResponse{
			ReqID:   msg.ReqID,
			RetCode: msg.RetCode,
			RetMsg:  msg.RetMsg,
			OrderID: msg.Data.OrderID,
		}
		ts.pendingMu.Lock()
		if ch, ok := ts.pending[msg.ReqID]; ok {
			select {
			case ch <- resp:
			default:
			}
		}
		ts.pendingMu.Unlock()
	}
}
