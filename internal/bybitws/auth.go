package bybitws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// wsAuthArgs builds the v5 WebSocket auth op:
// signature = HMAC_SHA256(api_secret, "GET/realtime" + expires_ms).
func wsAuthArgs(apiKey, apiSecret string) map[string]interface{} {
	expires := time.Now().Add(authExpiry).UnixMilli()
	h := hmac.New(sha256.New, []byte(apiSecret))
	h.Write([]byte(fmt.Sprintf("GET/realtime%d", expires)))
	return map[string]interface{}{
		"op":   "auth",
		"args": []string{apiKey, strconv.FormatInt(expires, 10), hex.EncodeToString(h.Sum(nil))},
	}
}
