package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"

	appconfig "fundingflow/config"
)

// isoTimestamp returns the millisecond UTC timestamp format the venue
// expects in the OK-ACCESS-TIMESTAMP header.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// sign computes base64(HMAC-SHA256(timestamp + method + requestPath + body)).
func sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signRequest attaches the private-endpoint auth headers to req. requestPath
// must include the query string, exactly as sent on the wire.
func signRequest(req *http.Request, src appconfig.OkxSourceConfig, method, requestPath, body string) {
	ts := isoTimestamp(time.Now())
	req.Header.Set("OK-ACCESS-KEY", src.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", sign(src.APISecret, ts, method, requestPath, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", src.Passphrase)
	req.Header.Set("Content-Type", "application/json")
}
