package okx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	appconfig "fundingflow/config"
)

func testConfig(baseURL string) *appconfig.Config {
	return &appconfig.Config{
		Source: appconfig.SourceConfig{
			Okx: appconfig.OkxSourceConfig{
				RestURL:   baseURL,
				RateLimit: appconfig.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000},
			},
		},
		History: appconfig.HistoryConfig{
			LookbackDays:         2,
			RequestPacingMs:      1,
			RateLimitCooldownSec: 1,
			RateLimitMaxRetries:  3,
		},
		Accounting: appconfig.AccountingConfig{MaxAttempts: 3},
	}
}

func TestFetchSnapshotsFiltersAndCoerces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/market/tickers":
			w.Write([]byte(`{"code":"0","data":[
				{"instId":"BTC-USDT-SWAP","last":"65000.5"},
				{"instId":"BTC-USD-SWAP","last":"64000"},
				{"instId":"ETH-USDT-SWAP","last":"not-a-number"}]}`))
		case "/api/v5/public/funding-rate":
			w.Write([]byte(`{"code":"0","data":[{"instId":"x","fundingRate":"0.0001"}]}`))
		case "/api/v5/public/mark-price":
			w.Write([]byte(`{"code":"0","data":[{"instId":"x","markPx":"65010"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reader := NewSnapshotReader(testConfig(srv.URL))
	snaps, err := reader.FetchSnapshots(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2 (USD-margined filtered out)", len(snaps))
	}
	if snaps[0].InstrumentID != "BTC" {
		t.Errorf("instrument id = %q, want BTC", snaps[0].InstrumentID)
	}
	if snaps[0].LastPrice != 65000.5 || snaps[0].FundingRate != 0.0001 || snaps[0].MarkPrice != 65010 {
		t.Errorf("snapshot fields = %+v", snaps[0])
	}
	if snaps[1].LastPrice != 0.0 {
		t.Errorf("malformed last price should coerce to zero, got %v", snaps[1].LastPrice)
	}
}

func TestFetchSnapshotsTopLevelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	reader := NewSnapshotReader(testConfig(srv.URL))
	snaps, err := reader.FetchSnapshots(context.Background())
	if err == nil {
		t.Fatal("expected error from failed ticker call")
	}
	if len(snaps) != 0 {
		t.Errorf("expected empty result on top-level failure, got %d", len(snaps))
	}
}

func TestFetchHistoryRetriesOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP","realizedRate":"0.0002","fundingTime":"1717027200000"}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.History.LookbackDays = 1
	reader := NewHistoryReader(cfg, NewClient(cfg))
	reader.now = func() time.Time { return time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC) }

	points, err := reader.FetchHistory(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected one retry after 429, got %d calls", got)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if points[0].Rate != 0.02 {
		t.Errorf("rate = %v, want 0.02 (percent scale)", points[0].Rate)
	}
	want := time.UnixMilli(1717027200000).UTC()
	if !points[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", points[0].Timestamp, want)
	}
}

func TestFetchHistorySkipsFailedDay(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP","realizedRate":"0.0001","fundingTime":"1716940800000"}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	reader := NewHistoryReader(cfg, NewClient(cfg))
	reader.now = func() time.Time { return time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC) }

	points, err := reader.FetchHistory(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 1 {
		t.Errorf("got %d points, want 1 from the surviving day", len(points))
	}
}

func TestSignKnownVector(t *testing.T) {
	got := sign("secret", "2024-05-30T12:00:00.000Z", "GET", "/api/v5/account/bills-archive", "")
	if got == "" {
		t.Fatal("empty signature")
	}
	// Same inputs must always produce the same signature.
	if again := sign("secret", "2024-05-30T12:00:00.000Z", "GET", "/api/v5/account/bills-archive", ""); again != got {
		t.Errorf("signature not deterministic: %q vs %q", got, again)
	}
	if other := sign("other", "2024-05-30T12:00:00.000Z", "GET", "/api/v5/account/bills-archive", ""); other == got {
		t.Error("different secrets produced the same signature")
	}
}

func TestFetchFundingFeesPaginatesAndFilters(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("OK-ACCESS-SIGN") == "" {
			t.Error("bills request not signed")
		}
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			if r.URL.Query().Get("after") != "" {
				t.Errorf("first page should have no cursor, got %q", r.URL.Query().Get("after"))
			}
			w.Write([]byte(`{"code":"0","data":[
				{"billId":"2","instId":"BTC-USDT-SWAP","subType":"173","balChg":"-1.5"},
				{"billId":"1","instId":"BTC-USDT-SWAP","subType":"174","balChg":"2.0"}]}`))
		case 2:
			if r.URL.Query().Get("after") != "1" {
				t.Errorf("cursor = %q, want 1", r.URL.Query().Get("after"))
			}
			w.Write([]byte(`{"code":"0","data":[
				{"billId":"0","instId":"ETH-USDT-SWAP","subType":"100","balChg":"9.9"}]}`))
		default:
			w.Write([]byte(`{"code":"0","data":[]}`))
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	reader := NewBillsReader(cfg, NewClient(cfg))
	fees, err := reader.FetchFundingFees(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fees) != 1 {
		t.Fatalf("got %d fee rows, want 1 (non-funding subtypes filtered)", len(fees))
	}
	if fees[0].InstrumentID != "BTC" || fees[0].Amount != 0.5 {
		t.Errorf("fee = %+v, want BTC 0.5", fees[0])
	}
}
