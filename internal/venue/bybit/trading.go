package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"arbscan/internal/venue"
)

// OrderRequest is the subset of /v5/order/create the executor uses.
type OrderRequest struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"` // Buy | Sell
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
	Category    string `json:"category"`
	PositionIdx int    `json:"positionIdx"`
}

// signature = HMAC_SHA256(api_secret, timestamp + api_key + recv_window + payload)
func (c *Client) sign(timestamp, payload string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(timestamp + c.apiKey + c.recvWindow + payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) authHeaders(payload string) map[string]string {
	ts := serverTimestamp()
	return map[string]string{
		"X-BAPI-API-KEY":     c.apiKey,
		"X-BAPI-TIMESTAMP":   ts,
		"X-BAPI-SIGN":        c.sign(ts, payload),
		"X-BAPI-RECV-WINDOW": c.recvWindow,
	}
}

// signedGet performs an authenticated GET. Query keys are sorted so the
// signed payload matches the encoded query string.
func (c *Client) signedGet(ctx context.Context, endpoint string, params map[string]string, out interface{}) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := url.Values{}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vals.Set(k, params[k])
		parts = append(parts, k+"="+params[k])
	}
	query := strings.Join(parts, "&")

	var env APIResponse
	if err := c.tr.Do(ctx, http.MethodGet, endpoint, vals, nil, c.authHeaders(query), &env); err != nil {
		return err
	}
	return c.checkAuthEnvelope(endpoint, &env, out)
}

func (c *Client) signedPost(ctx context.Context, endpoint string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return venue.NewError(venue.Bybit, venue.KindProtocol, endpoint, err)
	}
	var env APIResponse
	if err := c.tr.Do(ctx, http.MethodPost, endpoint, nil, raw, c.authHeaders(string(raw)), &env); err != nil {
		return err
	}
	return c.checkAuthEnvelope(endpoint, &env, out)
}

func (c *Client) checkAuthEnvelope(endpoint string, env *APIResponse, out interface{}) error {
	if env.RetCode != 0 {
		kind := venue.KindProtocol
		// 10003/10004: invalid key / signature, 10005: permission denied
		if env.RetCode == 10003 || env.RetCode == 10004 || env.RetCode == 10005 {
			kind = venue.KindAuth
		}
		return venue.NewError(venue.Bybit, kind, endpoint,
			fmt.Errorf("retCode %d: %s", env.RetCode, env.RetMsg))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

// CreateOrder places a linear-perpetual order and returns the order id.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	req.Category = categoryLinear
	var res OrderCreateResult
	if err := c.signedPost(ctx, EndpointCreateOrder, req, &res); err != nil {
		return "", err
	}
	return res.OrderID, nil
}

// GetOrder looks up an order by id, first in the realtime set, then in
// history where filled orders land shortly after execution.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*OrderInfo, error) {
	params := map[string]string{
		"category": categoryLinear,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	for _, endpoint := range []string{EndpointGetOrders, EndpointOrderHistory} {
		var res OrdersResult
		if err := c.signedGet(ctx, endpoint, params, &res); err != nil {
			return nil, err
		}
		for i := range res.List {
			if res.List[i].OrderID == orderID {
				return &res.List[i], nil
			}
		}
	}
	return nil, nil
}

// SetLeverage sets symmetric buy/sell leverage. The venue answers 110043 when
// leverage is already at the requested value; that is not a failure.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	lev := fmt.Sprintf("%g", leverage)
	body := map[string]string{
		"category":     categoryLinear,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	err := c.signedPost(ctx, EndpointSetLeverage, body, nil)
	if err != nil && strings.Contains(err.Error(), "110043") {
		return nil
	}
	return err
}

// AvailableUSDT returns the unified-account USDT balance available for new
// positions.
func (c *Client) AvailableUSDT(ctx context.Context) (float64, error) {
	params := map[string]string{
		"accountType": "UNIFIED",
		"coin":        "USDT",
	}
	var res WalletBalanceResult
	if err := c.signedGet(ctx, EndpointWalletBalance, params, &res); err != nil {
		return 0, err
	}
	for _, acct := range res.List {
		for _, coin := range acct.Coin {
			if coin.Coin == "USDT" {
				if v := venue.F(coin.AvailableToWithdraw); v > 0 {
					return v, nil
				}
				return venue.F(coin.WalletBalance), nil
			}
		}
	}
	return 0, nil
}
