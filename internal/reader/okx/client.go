package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/logger"

	"golang.org/x/time/rate"
)

const userAgent = "fundingflow/1.0"

// Client is the shared REST transport for the OKX v5 API. All readers in
// this package go through it so a single per-venue rate limiter paces every
// request regardless of which reader issued it.
type Client struct {
	cfg     *appconfig.Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
	baseURL string
}

// NewClient builds the client from configuration.
func NewClient(cfg *appconfig.Config) *Client {
	rps := cfg.Source.Okx.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Source.Okx.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
		baseURL: cfg.Source.Okx.RestURL,
	}
}

// get performs a rate-limited GET and decodes the JSON body into out.
// The caller owns interpretation of the venue-level response code.
func (c *Client) get(ctx context.Context, path string, out interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("okx request %s returned status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("okx request %s returned malformed body: %w", path, err)
	}
	return resp.StatusCode, nil
}

// getSigned is like get but attaches the private-endpoint auth headers.
func (c *Client) getSigned(ctx context.Context, path string, out interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	signRequest(req, c.cfg.Source.Okx, http.MethodGet, path, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("okx signed request %s returned status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("okx signed request %s returned malformed body: %w", path, err)
	}
	return resp.StatusCode, nil
}

// parseField coerces a venue string field to a float. Malformed or missing
// values degrade to zero instead of dropping the instrument.
func parseField(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0.0
	}
	return v
}
