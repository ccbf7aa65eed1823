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

// The execution list endpoint caps a single query at seven days.
const executionWindowMs = 7 * 24 * 60 * 60 * 1000

// ExecutionReader aggregates realized funding fees from the signed Bybit
// execution list. It is only constructed when accounting is enabled.
type ExecutionReader struct {
	client *Client
	cfg    *appconfig.Config
	log    *logger.Log
	now    func() time.Time
}

// NewExecutionReader creates the reader on a shared client.
func NewExecutionReader(cfg *appconfig.Config, client *Client) *ExecutionReader {
	return &ExecutionReader{client: client, cfg: cfg, log: logger.GetLogger(), now: time.Now}
}

type executionListResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol   string `json:"symbol"`
			ExecType string `json:"execType"`
			ExecFee  string `json:"execFee"`
		} `json:"list"`
		NextPageCursor string `json:"nextPageCursor"`
	} `json:"result"`
}

// FetchFundingFees walks the execution list over the lookback window in
// seven-day slices, following the continuation cursor inside each slice,
// and returns the net funding amount per instrument. The venue reports
// funding as a fee, so the sign is flipped: a negative fee is money
// received.
func (r *ExecutionReader) FetchFundingFees(ctx context.Context) ([]model.FundingFee, error) {
	log := r.log.WithComponent("bybit_execution_reader")
	totals := make(map[string]float64)

	pacing := time.Duration(r.cfg.History.RequestPacingMs) * time.Millisecond
	nowMs := r.now().UTC().UnixMilli()
	lookbackStart := nowMs - int64(r.cfg.History.LookbackDays)*24*60*60*1000

	for windowEnd := nowMs; windowEnd > lookbackStart; windowEnd -= executionWindowMs {
		windowStart := windowEnd - executionWindowMs
		if windowStart < lookbackStart {
			windowStart = lookbackStart
		}
		if err := r.fetchWindow(ctx, windowStart, windowEnd, totals, pacing); err != nil {
			return nil, err
		}
	}

	fees := make([]model.FundingFee, 0, len(totals))
	for inst, amount := range totals {
		fees = append(fees, model.FundingFee{InstrumentID: inst, Amount: amount})
	}
	log.WithFields(logger.Fields{"instruments": len(fees)}).Info("bybit funding fee aggregation complete")
	return fees, nil
}

func (r *ExecutionReader) fetchWindow(ctx context.Context, startMs, endMs int64, totals map[string]float64, pacing time.Duration) error {
	cursor := ""
	for {
		query := url.Values{}
		query.Set("category", "linear")
		query.Set("execType", "Funding")
		query.Set("startTime", strconv.FormatInt(startMs, 10))
		query.Set("endTime", strconv.FormatInt(endMs, 10))
		query.Set("limit", "100")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp executionListResponse
		if err := r.client.get(ctx, "/v5/execution/list", query, true, &resp); err != nil {
			return err
		}
		if resp.RetCode != 0 {
			return fmt.Errorf("bybit execution list rejected: code=%d msg=%s", resp.RetCode, resp.RetMsg)
		}

		for _, exec := range resp.Result.List {
			if exec.ExecType != "Funding" {
				continue
			}
			base := symbols.Normalize("bybit", exec.Symbol)
			totals[base] -= parseField(exec.ExecFee)
		}

		if resp.Result.NextPageCursor == "" {
			return nil
		}
		cursor = resp.Result.NextPageCursor

		select {
		case <-time.After(pacing):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
