package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/logger"
)

// warnMarker distinguishes failure reports from legitimate signals in the
// shared alert stream.
const warnMarker = "⚠️ "

// Channel delivers operator alerts. Text-only payloads go as a form post,
// payloads with a chart image go as multipart. Delivery failure is reported
// to the caller but is never cycle-fatal; callers log and continue.
type Channel struct {
	url   string
	token string
	http  *http.Client
	log   *logger.Log
}

// NewChannel creates the channel from configuration.
func NewChannel(cfg *appconfig.Config) *Channel {
	return &Channel{
		url:   cfg.Notify.URL,
		token: cfg.Notify.Token,
		http:  &http.Client{Timeout: 15 * time.Second},
		log:   logger.GetLogger(),
	}
}

// Send delivers a message, with an optional rendered chart attached.
func (c *Channel) Send(ctx context.Context, text string, image []byte) error {
	var body io.Reader
	contentType := ""

	if len(image) > 0 {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		if err := mw.WriteField("message", text); err != nil {
			return fmt.Errorf("build alert payload: %w", err)
		}
		fw, err := mw.CreateFormFile("imageFile", "chart.png")
		if err != nil {
			return fmt.Errorf("build alert payload: %w", err)
		}
		if _, err := fw.Write(image); err != nil {
			return fmt.Errorf("build alert payload: %w", err)
		}
		if err := mw.Close(); err != nil {
			return fmt.Errorf("build alert payload: %w", err)
		}
		body = buf
		contentType = mw.FormDataContentType()
	} else {
		form := url.Values{}
		form.Set("message", text)
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alert channel returned status %d", resp.StatusCode)
	}
	return nil
}

// Warn delivers a failure report, marked so operators can tell it apart
// from a signal in the same stream.
func (c *Channel) Warn(ctx context.Context, text string) error {
	return c.Send(ctx, warnMarker+text, nil)
}
