package bybit

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
// every USDT linear perpetual on Bybit. The venue returns all three fields
// in the single tickers call, so one request covers the whole universe.
type SnapshotReader struct {
	client *Client
	log    *logger.Log
}

// NewSnapshotReader creates the reader.
func NewSnapshotReader(cfg *appconfig.Config) *SnapshotReader {
	return &SnapshotReader{client: NewClient(cfg), log: logger.GetLogger()}
}

// NewSnapshotReaderWithClient wires the reader onto an existing client.
func NewSnapshotReaderWithClient(client *Client) *SnapshotReader {
	return &SnapshotReader{client: client, log: logger.GetLogger()}
}

type tickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol      string `json:"symbol"`
			LastPrice   string `json:"lastPrice"`
			MarkPrice   string `json:"markPrice"`
			FundingRate string `json:"fundingRate"`
		} `json:"list"`
	} `json:"result"`
}

// FetchSnapshots returns one snapshot per USDT linear perpetual. Failure of
// the tickers call returns an empty slice and the error; malformed numeric
// fields coerce to zero and the instrument stays in the result.
func (r *SnapshotReader) FetchSnapshots(ctx context.Context) ([]model.InstrumentSnapshot, error) {
	query := url.Values{}
	query.Set("category", "linear")

	var resp tickersResponse
	if err := r.client.get(ctx, "/v5/market/tickers", query, false, &resp); err != nil {
		return nil, fmt.Errorf("bybit ticker list fetch failed: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit ticker list rejected: code=%d msg=%s", resp.RetCode, resp.RetMsg)
	}

	snapshots := make([]model.InstrumentSnapshot, 0, len(resp.Result.List))
	for _, t := range resp.Result.List {
		if !symbols.IsUSDTLinear("bybit", t.Symbol) {
			continue
		}
		snapshots = append(snapshots, model.InstrumentSnapshot{
			InstrumentID: symbols.Normalize("bybit", t.Symbol),
			LastPrice:    parseField(t.LastPrice),
			MarkPrice:    parseField(t.MarkPrice),
			FundingRate:  parseField(t.FundingRate),
		})
	}

	r.log.WithComponent("bybit_snapshot_reader").
		WithFields(logger.Fields{"instruments": len(snapshots)}).Info("bybit snapshot fetch complete")
	return snapshots, nil
}
