package okx

import (
	"context"
	"fmt"
	"net/url"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

// SnapshotReader fetches the live price, mark price and funding rate for
// every USDT linear swap on OKX.
type SnapshotReader struct {
	client *Client
	log    *logger.Log
}

// NewSnapshotReader creates the reader.
func NewSnapshotReader(cfg *appconfig.Config) *SnapshotReader {
	return &SnapshotReader{client: NewClient(cfg), log: logger.GetLogger()}
}

// NewSnapshotReaderWithClient wires the reader onto an existing client so
// all OKX readers share one rate limiter.
func NewSnapshotReaderWithClient(client *Client) *SnapshotReader {
	return &SnapshotReader{client: client, log: logger.GetLogger()}
}

type tickersResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	} `json:"data"`
}

type fundingRateResponse struct {
	Code string `json:"code"`
	Data []struct {
		InstID      string `json:"instId"`
		FundingRate string `json:"fundingRate"`
	} `json:"data"`
}

type markPriceResponse struct {
	Code string `json:"code"`
	Data []struct {
		InstID    string `json:"instId"`
		MarkPrice string `json:"markPx"`
	} `json:"data"`
}

// FetchSnapshots returns one snapshot per USDT linear swap. A failure of the
// top-level ticker call returns an empty slice and the error; per-instrument
// endpoint failures degrade the affected fields to zero and the instrument
// stays in the result.
func (r *SnapshotReader) FetchSnapshots(ctx context.Context) ([]model.InstrumentSnapshot, error) {
	log := r.log.WithComponent("okx_snapshot_reader")

	var tickers tickersResponse
	if _, err := r.client.get(ctx, "/api/v5/market/tickers?instType=SWAP", &tickers); err != nil {
		return nil, fmt.Errorf("okx ticker list fetch failed: %w", err)
	}
	if tickers.Code != "0" {
		return nil, fmt.Errorf("okx ticker list rejected: code=%s msg=%s", tickers.Code, tickers.Msg)
	}

	snapshots := make([]model.InstrumentSnapshot, 0, len(tickers.Data))
	for _, t := range tickers.Data {
		if !symbols.IsUSDTLinear("okx", t.InstID) {
			continue
		}
		snap := model.InstrumentSnapshot{
			InstrumentID: symbols.Normalize("okx", t.InstID),
			LastPrice:    parseField(t.Last),
		}
		snap.FundingRate = r.fetchFundingRate(ctx, t.InstID)
		snap.MarkPrice = r.fetchMarkPrice(ctx, t.InstID)
		snapshots = append(snapshots, snap)
	}

	log.WithFields(logger.Fields{"instruments": len(snapshots)}).Info("okx snapshot fetch complete")
	return snapshots, nil
}

func (r *SnapshotReader) fetchFundingRate(ctx context.Context, instID string) float64 {
	var resp fundingRateResponse
	path := "/api/v5/public/funding-rate?instId=" + url.QueryEscape(instID)
	if _, err := r.client.get(ctx, path, &resp); err != nil {
		r.log.WithComponent("okx_snapshot_reader").WithError(err).
			WithFields(logger.Fields{"instId": instID}).Warn("funding rate fetch failed, using zero")
		return 0.0
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return 0.0
	}
	return parseField(resp.Data[0].FundingRate)
}

func (r *SnapshotReader) fetchMarkPrice(ctx context.Context, instID string) float64 {
	var resp markPriceResponse
	path := "/api/v5/public/mark-price?instType=SWAP&instId=" + url.QueryEscape(instID)
	if _, err := r.client.get(ctx, path, &resp); err != nil {
		r.log.WithComponent("okx_snapshot_reader").WithError(err).
			WithFields(logger.Fields{"instId": instID}).Warn("mark price fetch failed, using zero")
		return 0.0
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return 0.0
	}
	return parseField(resp.Data[0].MarkPrice)
}
