package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// sign computes hex(HMAC-SHA256(timestamp + apiKey + recvWindow + query))
// as required by Bybit v5 signed GET requests. query is the encoded query
// string exactly as sent on the wire; url.Values.Encode already sorts keys.
func sign(secret, timestamp, apiKey, recvWindow, query string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + apiKey + recvWindow + query))
	return hex.EncodeToString(mac.Sum(nil))
}
