package bybit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const historyPageLimit = 200

// HistoryReader retrieves historical funding rates by following the venue's
// continuation cursor within a time window, then sliding the window end to
// just before the oldest returned record until the lookback is covered.
type HistoryReader struct {
	client *Client
	cfg    *appconfig.Config
	log    *logger.Log
	now    func() time.Time
}

// NewHistoryReader creates the reader on a shared client.
func NewHistoryReader(cfg *appconfig.Config, client *Client) *HistoryReader {
	return &HistoryReader{client: client, cfg: cfg, log: logger.GetLogger(), now: time.Now}
}

type fundingHistoryResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol               string `json:"symbol"`
			FundingRate          string `json:"fundingRate"`
			FundingRateTimestamp string `json:"fundingRateTimestamp"`
		} `json:"list"`
		NextPageCursor string `json:"nextPageCursor"`
	} `json:"result"`
}

// FetchHistory returns funding events for one instrument over the configured
// lookback window, newest first as the venue delivers them. Rates are scaled
// to percent and timestamps normalized to UTC second resolution.
func (r *HistoryReader) FetchHistory(ctx context.Context, base string) ([]model.FundingHistoryPoint, error) {
	symbol := symbols.BybitSymbol(base)
	log := r.log.WithComponent("bybit_history_reader").WithFields(logger.Fields{"symbol": symbol})

	pacing := time.Duration(r.cfg.History.RequestPacingMs) * time.Millisecond
	nowMs := r.now().UTC().UnixMilli()
	windowStart := nowMs - int64(r.cfg.History.LookbackDays)*24*60*60*1000

	var points []model.FundingHistoryPoint
	endTime := nowMs
	cursor := ""
	for {
		query := url.Values{}
		query.Set("category", "linear")
		query.Set("symbol", symbol)
		query.Set("limit", strconv.Itoa(historyPageLimit))
		query.Set("startTime", strconv.FormatInt(windowStart, 10))
		query.Set("endTime", strconv.FormatInt(endTime, 10))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp fundingHistoryResponse
		if err := r.client.get(ctx, "/v5/market/funding/history", query, false, &resp); err != nil {
			return points, err
		}
		if resp.RetCode != 0 {
			return points, fmt.Errorf("bybit funding history rejected: code=%d msg=%s", resp.RetCode, resp.RetMsg)
		}
		if len(resp.Result.List) == 0 {
			break
		}

		var oldest int64 = endTime
		for _, rec := range resp.Result.List {
			ms, err := strconv.ParseInt(rec.FundingRateTimestamp, 10, 64)
			if err != nil {
				continue
			}
			if ms < oldest {
				oldest = ms
			}
			points = append(points, model.FundingHistoryPoint{
				Timestamp: time.UnixMilli(ms).UTC().Truncate(time.Second),
				Rate:      parseField(rec.FundingRate) * 100,
			})
		}

		if resp.Result.NextPageCursor != "" {
			cursor = resp.Result.NextPageCursor
		} else {
			// Window exhausted: slide the end to just before the oldest
			// record and start a fresh window.
			cursor = ""
			if oldest <= windowStart {
				break
			}
			endTime = oldest - 1
		}

		select {
		case <-time.After(pacing):
		case <-ctx.Done():
			return points, ctx.Err()
		}
	}

	log.WithFields(logger.Fields{"points": len(points)}).Info("bybit funding history fetch complete")
	return points, nil
}
