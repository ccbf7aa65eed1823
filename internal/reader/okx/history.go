package okx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

// HistoryReader retrieves historical funding rates day by day, newest day
// first, one request per calendar day in the lookback window.
type HistoryReader struct {
	client *Client
	cfg    *appconfig.Config
	log    *logger.Log
	// now is overridable in tests.
	now func() time.Time
}

// NewHistoryReader creates the reader on a shared client.
func NewHistoryReader(cfg *appconfig.Config, client *Client) *HistoryReader {
	return &HistoryReader{client: client, cfg: cfg, log: logger.GetLogger(), now: time.Now}
}

type fundingHistoryResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID       string `json:"instId"`
		RealizedRate string `json:"realizedRate"`
		FundingTime  string `json:"fundingTime"`
	} `json:"data"`
}

// FetchHistory returns funding events for one instrument over the configured
// lookback window. The realized rate is the settled one, scaled to percent,
// with timestamps normalized to UTC second resolution. A day whose request
// ultimately fails is skipped so the remaining days still contribute.
func (r *HistoryReader) FetchHistory(ctx context.Context, base string) ([]model.FundingHistoryPoint, error) {
	instID := symbols.OkxInstID(base)
	log := r.log.WithComponent("okx_history_reader").WithFields(logger.Fields{"instId": instID})

	pacing := time.Duration(r.cfg.History.RequestPacingMs) * time.Millisecond
	today := r.now().UTC().Truncate(24 * time.Hour)

	var points []model.FundingHistoryPoint
	for day := 0; day < r.cfg.History.LookbackDays; day++ {
		dayStart := today.AddDate(0, 0, -day)
		dayPoints, err := r.fetchDay(ctx, instID, dayStart)
		if err != nil {
			if ctx.Err() != nil {
				return points, ctx.Err()
			}
			log.WithError(err).WithFields(logger.Fields{"day": dayStart.Format("2006-01-02")}).
				Warn("funding history day fetch failed, skipping day")
			continue
		}
		points = append(points, dayPoints...)

		if day+1 < r.cfg.History.LookbackDays {
			select {
			case <-time.After(pacing):
			case <-ctx.Done():
				return points, ctx.Err()
			}
		}
	}

	log.WithFields(logger.Fields{"points": len(points)}).Info("okx funding history fetch complete")
	return points, nil
}

// fetchDay requests the records before the given day's midnight. On HTTP 429
// it sleeps the configured cooldown and retries the identical request, up to
// the configured attempt bound (zero bound means retry until cancelled).
func (r *HistoryReader) fetchDay(ctx context.Context, instID string, dayStart time.Time) ([]model.FundingHistoryPoint, error) {
	path := fmt.Sprintf("/api/v5/public/funding-rate-history?instId=%s&before=%d&limit=1000",
		url.QueryEscape(instID), dayStart.UnixMilli())
	cooldown := time.Duration(r.cfg.History.RateLimitCooldownSec) * time.Second
	maxRetries := r.cfg.History.RateLimitMaxRetries

	attempts := 0
	for {
		var resp fundingHistoryResponse
		status, err := r.client.get(ctx, path, &resp)
		if status == http.StatusTooManyRequests {
			attempts++
			if maxRetries > 0 && attempts > maxRetries {
				return nil, fmt.Errorf("rate limited %d times fetching %s", attempts, path)
			}
			r.log.WithComponent("okx_history_reader").WithFields(logger.Fields{
				"instId":  instID,
				"attempt": attempts,
			}).Warn("rate limited by okx, waiting before retry")
			select {
			case <-time.After(cooldown):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err != nil {
			return nil, err
		}
		if resp.Code != "0" {
			return nil, fmt.Errorf("okx funding history rejected: code=%s msg=%s", resp.Code, resp.Msg)
		}

		points := make([]model.FundingHistoryPoint, 0, len(resp.Data))
		for _, rec := range resp.Data {
			ms, err := strconv.ParseInt(rec.FundingTime, 10, 64)
			if err != nil {
				continue
			}
			points = append(points, model.FundingHistoryPoint{
				Timestamp: time.UnixMilli(ms).UTC().Truncate(time.Second),
				Rate:      parseField(rec.RealizedRate) * 100,
			})
		}
		return points, nil
	}
}
