package okx

import (
	"context"
	"fmt"
	"time"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

// Funding-fee bill subtypes on the bills archive.
const (
	subTypeFundingPaid     = "173"
	subTypeFundingReceived = "174"
)

// billsBusyCode is returned while the archive is being prepared server side.
const billsBusyCode = "50011"

// BillsReader aggregates realized funding fees from the signed OKX bills
// archive. It is only constructed when accounting is enabled.
type BillsReader struct {
	client *Client
	cfg    *appconfig.Config
	log    *logger.Log
}

// NewBillsReader creates the reader on a shared client.
func NewBillsReader(cfg *appconfig.Config, client *Client) *BillsReader {
	return &BillsReader{client: client, cfg: cfg, log: logger.GetLogger()}
}

type billsResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		BillID  string `json:"billId"`
		InstID  string `json:"instId"`
		SubType string `json:"subType"`
		BalChg  string `json:"balChg"`
	} `json:"data"`
}

// FetchFundingFees walks the whole bills archive via the billId cursor and
// returns the net funding amount per instrument. The archive endpoint
// answers busy while the export is prepared; those responses are retried
// with exponential backoff up to the configured attempt cap.
func (r *BillsReader) FetchFundingFees(ctx context.Context) ([]model.FundingFee, error) {
	log := r.log.WithComponent("okx_bills_reader")
	totals := make(map[string]float64)

	cursor := ""
	for {
		page, err := r.fetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if len(page.Data) == 0 {
			break
		}
		for _, bill := range page.Data {
			if bill.SubType != subTypeFundingPaid && bill.SubType != subTypeFundingReceived {
				continue
			}
			base := symbols.Normalize("okx", bill.InstID)
			totals[base] += parseField(bill.BalChg)
		}
		cursor = page.Data[len(page.Data)-1].BillID
	}

	fees := make([]model.FundingFee, 0, len(totals))
	for inst, amount := range totals {
		fees = append(fees, model.FundingFee{InstrumentID: inst, Amount: amount})
	}
	log.WithFields(logger.Fields{"instruments": len(fees)}).Info("okx funding fee aggregation complete")
	return fees, nil
}

func (r *BillsReader) fetchPage(ctx context.Context, cursor string) (*billsResponse, error) {
	path := "/api/v5/account/bills-archive?instType=SWAP&type=8&limit=100"
	if cursor != "" {
		path += "&after=" + cursor
	}

	maxAttempts := r.cfg.Accounting.MaxAttempts
	for attempt := 0; ; attempt++ {
		var resp billsResponse
		if _, err := r.client.getSigned(ctx, path, &resp); err != nil {
			return nil, err
		}
		if resp.Code == billsBusyCode {
			if attempt+1 >= maxAttempts {
				return nil, fmt.Errorf("okx bills archive busy after %d attempts", attempt+1)
			}
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			r.log.WithComponent("okx_bills_reader").WithFields(logger.Fields{
				"attempt": attempt + 1,
				"backoff": backoff.String(),
			}).Warn("okx bills archive busy, backing off")
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if resp.Code != "0" {
			return nil, fmt.Errorf("okx bills archive rejected: code=%s msg=%s", resp.Code, resp.Msg)
		}
		return &resp, nil
	}
}
