package bybitws

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"arbscan/internal/metrics"
	"arbscan/internal/venue"
)

const (
	WSPrivateURL = "wss://stream.bybit.com/v5/private"

	authExpiry      = 20 * time.Second
	privatePingFreq = 20 * time.Second
)

// OrderUpdate is the normalized order event from the private stream.
type OrderUpdate struct {
	OrderID     string
	OrderLinkID string
	Symbol      string
	Side        string
	Status      string
	Qty         float64
	CumExecQty  float64
	AvgPrice    float64
}

// Final reports whether the order reached a terminal state.
func (u *OrderUpdate) Final() bool {
	switch u.Status {
	case "Filled", "Cancelled", "Rejected", "Deactivated", "PartiallyFilledCanceled":
		return true
	}
	return false
}

// PositionKey identifies one position slot in the cache.
func PositionKey(symbol string, positionIdx int, side string) string {
	return symbol + "|" + strconv.Itoa(positionIdx) + "|" + side
}

// PositionEntry is the cached state of one position slot.
type PositionEntry struct {
	Size      float64
	UpdatedAt time.Time
}

// PrivateStream subscribes to order, execution and position topics. Callers
// waiting on a specific order register a waiter keyed by order id; the first
// terminal update is delivered there. Position updates feed a per-key cache
// with change notifications.
type PrivateStream struct {
	url       string
	apiKey    string
	apiSecret string

	mu            sync.RWMutex
	conn          *websocket.Conn
	connected     bool
	authenticated bool
	positions     map[string]PositionEntry
	lastMsgAt     time.Time

	waiterMu   sync.Mutex
	waiters    map[string]chan OrderUpdate     // orderID -> waiter
	posWaiters map[string][]chan PositionEntry // PositionKey -> one-shot waiters

	updates chan struct{} // coalesced any-position-update signal

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPrivateStream creates the private stream client.
func NewPrivateStream(apiKey, apiSecret string) *PrivateStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &PrivateStream{
		url:        WSPrivateURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		positions:  make(map[string]PositionEntry),
		waiters:    make(map[string]chan OrderUpdate),
		posWaiters: make(map[string][]chan PositionEntry),
		updates:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start connects, authenticates, subscribes and launches the read loop.
func (ps *PrivateStream) Start(ctx context.Context) error {
	if err := ps.connect(ctx); err != nil {
		return err
	}
	go ps.run()
	go ps.pingLoop()
	return nil
}

// Stop shuts the stream down.
func (ps *PrivateStream) Stop() {
	ps.cancel()
	close(ps.done)
	ps.mu.Lock()
	ps.connected = false
	if ps.conn != nil {
		_ = ps.conn.Close()
	}
	ps.mu.Unlock()

	ps.waiterMu.Lock()
	for key, chans := range ps.posWaiters {
		for _, ch := range chans {
			close(ch)
		}
		delete(ps.posWaiters, key)
	}
	ps.waiterMu.Unlock()
}

// Position returns the cached entry for a position slot.
func (ps *PrivateStream) Position(symbol string, positionIdx int, side string) (PositionEntry, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	entry, ok := ps.positions[PositionKey(symbol, positionIdx, side)]
	return entry, ok
}

// NetExposure sums absolute cached sizes across every slot of one symbol.
// Flat detection cannot key on side: the venue reports a closed position
// with an empty side, under a different key than the open carried.
func (ps *PrivateStream) NetExposure(symbol string) (float64, time.Time, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	var total float64
	var latest time.Time
	found := false
	for key, entry := range ps.positions {
		if !strings.HasPrefix(key, symbol+"|") {
			continue
		}
		found = true
		total += math.Abs(entry.Size)
		if entry.UpdatedAt.After(latest) {
			latest = entry.UpdatedAt
		}
	}
	return total, latest, found
}

// Staleness returns the age of the last received message. ok is false until
// the first message arrives.
func (ps *PrivateStream) Staleness() (time.Duration, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.lastMsgAt.IsZero() {
		return 0, false
	}
	return time.Since(ps.lastMsgAt), true
}

// PositionUpdates signals whenever any position update arrives. The channel
// is coalescing: a pending signal covers all updates since the last receive.
func (ps *PrivateStream) PositionUpdates() <-chan struct{} {
	return ps.updates
}

// AwaitPositionChange blocks until the next update for the given slot, the
// context ends or the stream stops.
func (ps *PrivateStream) AwaitPositionChange(ctx context.Context, symbol string, positionIdx int, side string) (PositionEntry, error) {
	key := PositionKey(symbol, positionIdx, side)
	ch := make(chan PositionEntry, 1)
	ps.waiterMu.Lock()
	ps.posWaiters[key] = append(ps.posWaiters[key], ch)
	ps.waiterMu.Unlock()

	select {
	case entry, ok := <-ch:
		if !ok {
			return PositionEntry{}, fmt.Errorf("private stream closed")
		}
		return entry, nil
	case <-ctx.Done():
		ps.dropPosWaiter(key, ch)
		return PositionEntry{}, ctx.Err()
	case <-ps.done:
		return PositionEntry{}, fmt.Errorf("private stream closed")
	}
}

func (ps *PrivateStream) dropPosWaiter(key string, ch chan PositionEntry) {
	ps.waiterMu.Lock()
	defer ps.waiterMu.Unlock()
	chans := ps.posWaiters[key]
	for i, c := range chans {
		if c == ch {
			ps.posWaiters[key] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(ps.posWaiters[key]) == 0 {
		delete(ps.posWaiters, key)
	}
}

// WaitForFinal blocks until the order reaches a terminal state or ctx ends.
func (ps *PrivateStream) WaitForFinal(ctx context.Context, orderID string) (*OrderUpdate, error) {
	ch := make(chan OrderUpdate, 1)
	ps.waiterMu.Lock()
	ps.waiters[orderID] = ch
	ps.waiterMu.Unlock()
	defer func() {
		ps.waiterMu.Lock()
		delete(ps.waiters, orderID)
		ps.waiterMu.Unlock()
	}()

	select {
	case u := <-ch:
		return &u, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ps.done:
		return nil, fmt.Errorf("private stream closed")
	}
}

func (ps *PrivateStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, ps.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Bybit private WebSocket: %w", err)
	}

	if err := conn.WriteJSON(wsAuthArgs(ps.apiKey, ps.apiSecret)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send auth: %w", err)
	}

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"order", "execution", "position"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ps.mu.Lock()
	ps.conn = conn
	ps.connected = true
	ps.mu.Unlock()
	metrics.RecordWSStatus("private", true)
	log.Info().Msg("Connected to Bybit private WebSocket")
	return nil
}

func (ps *PrivateStream) pingLoop() {
	ticker := time.NewTicker(privatePingFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ps.done:
			return
		case <-ticker.C:
			ps.mu.RLock()
			conn := ps.conn
			connected := ps.connected
			ps.mu.RUnlock()
			if connected && conn != nil {
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}
}

func (ps *PrivateStream) run() {
	backoff := reconnectBackoffMin
	for {
		select {
		case <-ps.done:
			return
		default:
		}

		ps.mu.RLock()
		conn := ps.conn
		ps.mu.RUnlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			metrics.RecordWSStatus("private", false)
			metrics.WSReconnects.WithLabelValues("private").Inc()
			logClose("private", err)
			conn.Close()

			select {
			case <-ps.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectBackoffMax {
				backoff = reconnectBackoffMax
			}
			if cerr := ps.connect(ps.ctx); cerr != nil {
				log.Warn().Err(cerr).Msg("Private stream reconnect failed")
			}
			continue
		}
		backoff = reconnectBackoffMin
		ps.handleMessage(data)
	}
}

func (ps *PrivateStream) handleMessage(data []byte) {
	ps.mu.Lock()
	ps.lastMsgAt = time.Now()
	ps.mu.Unlock()

	var msg struct {
		Op      string          `json:"op"`
		Success *bool           `json:"success"`
		Topic   string          `json:"topic"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Op == "auth" {
		ok := msg.Success != nil && *msg.Success
		ps.mu.Lock()
		ps.authenticated = ok
		ps.mu.Unlock()
		if !ok {
			log.Error().Msg("Bybit private WebSocket auth rejected")
		}
		return
	}

	switch msg.Topic {
	case "order":
		var orders []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderStatus string `json:"orderStatus"`
			Qty         string `json:"qty"`
			CumExecQty  string `json:"cumExecQty"`
			AvgPrice    string `json:"avgPrice"`
		}
		if json.Unmarshal(msg.Data, &orders) != nil {
			return
		}
		for _, o := range orders {
			u := OrderUpdate{
				OrderID:     o.OrderID,
				OrderLinkID: o.OrderLinkID,
				Symbol:      o.Symbol,
				Side:        o.Side,
				Status:      o.OrderStatus,
				Qty:         venue.F(o.Qty),
				CumExecQty:  venue.F(o.CumExecQty),
				AvgPrice:    venue.F(o.AvgPrice),
			}
			if !u.Final() {
				continue
			}
			ps.waiterMu.Lock()
			if ch, ok := ps.waiters[u.OrderID]; ok {
				select {
				case ch <- u:
				default:
				}
			}
			ps.waiterMu.Unlock()
		}
	case "position":
		var positions []struct {
			Symbol      string `json:"symbol"`
			PositionIdx int    `json:"positionIdx"`
			Side        string `json:"side"`
			Size        string `json:"size"`
		}
		if json.Unmarshal(msg.Data, &positions) != nil {
			return
		}
		for _, p := range positions {
			key := PositionKey(p.Symbol, p.PositionIdx, p.Side)
			entry := PositionEntry{Size: venue.F(p.Size), UpdatedAt: time.Now()}

			fire := []string{key}
			ps.mu.Lock()
			ps.positions[key] = entry
			if entry.Size == 0 {
				// a flat report carries an empty side, which lands under a
				// different key than the open did; zero the sibling slots
				// so the symbol's exposure reads flat
				prefix := PositionKey(p.Symbol, p.PositionIdx, "")
				for k := range ps.positions {
					if k != key && strings.HasPrefix(k, prefix) {
						ps.positions[k] = entry
						fire = append(fire, k)
					}
				}
			}
			ps.mu.Unlock()

			ps.waiterMu.Lock()
			for _, k := range fire {
				for _, ch := range ps.posWaiters[k] {
					select {
					case ch <- entry:
					default:
					}
				}
				delete(ps.posWaiters, k)
			}
			ps.waiterMu.Unlock()
		}
		select {
		case ps.updates <- struct{}{}:
		default:
		}
	}
}
