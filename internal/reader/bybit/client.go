package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/logger"

	"golang.org/x/time/rate"
)

const userAgent = "fundingflow/1.0"

// Client is the shared REST transport for the Bybit v5 API. One limiter
// paces every request to the venue across all readers.
type Client struct {
	cfg     *appconfig.Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
	baseURL string
	// now is overridable in tests for deterministic signing timestamps.
	now func() time.Time
}

// NewClient builds the client from configuration.
func NewClient(cfg *appconfig.Config) *Client {
	rps := cfg.Source.Bybit.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Source.Bybit.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
		baseURL: cfg.Source.Bybit.RestURL,
		now:     time.Now,
	}
}

// get performs a rate-limited public GET, optionally signing the request
// for private endpoints, and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, signed bool, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	encoded := query.Encode()
	full := c.baseURL + path
	if encoded != "" {
		full += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if signed {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		src := c.cfg.Source.Bybit
		req.Header.Set("X-BAPI-API-KEY", src.APIKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", src.RecvWindow)
		req.Header.Set("X-BAPI-SIGN", sign(src.APISecret, ts, src.APIKey, src.RecvWindow, encoded))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bybit request %s returned status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bybit request %s returned malformed body: %w", path, err)
	}
	return nil
}

// parseField coerces a venue string field to a float. Malformed or missing
// values degrade to zero instead of dropping the record.
func parseField(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0.0
	}
	return v
}
