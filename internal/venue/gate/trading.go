package gate

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"arbscan/internal/venue"
)

// signedRequest signs per Gate v4: the payload is
// method\npath\nquery\nSHA512(body)\ntimestamp, HMAC-SHA512 with the secret.
func (c *Client) signedRequest(ctx context.Context, method, path string, params url.Values, body []byte, out interface{}) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	bodyHash := sha512.Sum512(body)
	query := params.Encode()

	payload := fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		method, path, query, hex.EncodeToString(bodyHash[:]), ts)
	mac := hmac.New(sha512.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))

	headers := map[string]string{
		"KEY":       c.apiKey,
		"Timestamp": ts,
		"SIGN":      hex.EncodeToString(mac.Sum(nil)),
	}
	err := c.tr.Do(ctx, method, path, params, body, headers, out)
	if err != nil && venue.KindOf(err) == venue.KindProtocol {
		// 401-class labels are auth failures, not payload bugs
		for _, label := range []string{"INVALID_KEY", "INVALID_SIGNATURE", "FORBIDDEN"} {
			if strings.Contains(err.Error(), label) {
				return venue.NewError(venue.Gate, venue.KindAuth, path, err)
			}
		}
	}
	return err
}

// PlaceOrder submits a futures order. Market orders carry price "0" and
// tif "ioc" per the venue's convention.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderInfo, error) {
	if req.Price == "" {
		req.Price = "0"
		req.TIF = "ioc"
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, venue.NewError(venue.Gate, venue.KindProtocol, EndpointOrders, err)
	}
	var res OrderInfo
	if err := c.signedRequest(ctx, http.MethodPost, EndpointOrders, nil, raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetOrder fetches one order by id.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (*OrderInfo, error) {
	path := EndpointOrders + "/" + strconv.FormatInt(orderID, 10)
	var res OrderInfo
	if err := c.signedRequest(ctx, http.MethodGet, path, nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AvailableUSDT returns the futures account balance available for margin.
func (c *Client) AvailableUSDT(ctx context.Context) (float64, error) {
	var res AccountInfo
	if err := c.signedRequest(ctx, http.MethodGet, EndpointAccounts, nil, nil, &res); err != nil {
		return 0, err
	}
	return venue.F(res.Available), nil
}

// SetLeverage sets cross/isolated leverage for a contract.
func (c *Client) SetLeverage(ctx context.Context, coin string, leverage float64) error {
	path := "/api/v4/futures/usdt/positions/" + c.NormalizeSymbol(coin) + "/leverage"
	params := url.Values{}
	params.Set("leverage", fmt.Sprintf("%g", leverage))
	return c.signedRequest(ctx, http.MethodPost, path, params, nil, nil)
}
