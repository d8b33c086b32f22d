// Package horizon is the upstream client for the Stellar-like read-only fee
// data source. It fetches recent transactions and fee-stats snapshots,
// converts successful transactions into feesample.Sample values, and
// classifies failures as transient (retryable) or permanent.
package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stellar-fee-tracker/insights-service/internal/retry"
)

// Percentiles mirrors the upstream fee-stats percentile breakdown.
type Percentiles struct {
	P10 float64
	P25 float64
	P50 float64
	P75 float64
	P90 float64
	P95 float64
}

// FeeStats is the upstream fee-stats snapshot, decimal strings parsed to
// float64.
type FeeStats struct {
	LastLedgerBaseFee int64
	Min               float64
	Max               float64
	Avg               float64
	Percentiles       Percentiles
}

type transactionRecord struct {
	Hash        string `json:"hash"`
	Ledger      uint64 `json:"ledger"`
	CreatedAt   string `json:"created_at"`
	FeeCharged  string `json:"fee_charged"`
	Successful  bool   `json:"successful"`
}

type feeChargedStats struct {
	Min float64 `json:"min,string"`
	Max float64 `json:"max,string"`
	Avg float64 `json:"avg,string"`
	P10 float64 `json:"p10,string"`
	P25 float64 `json:"p25,string"`
	P50 float64 `json:"p50,string"`
	P75 float64 `json:"p75,string"`
	P90 float64 `json:"p90,string"`
	P95 float64 `json:"p95,string"`
}

type feeStatsResponse struct {
	LastLedgerBaseFee string          `json:"last_ledger_base_fee"`
	FeeCharged        feeChargedStats `json:"fee_charged"`
}

// Client fetches fee data from the upstream read-only API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchRecentTransactions retrieves recent transactions and converts
// successful ones into fee samples. Failed transactions are discarded with
// no error. Network/timeout/5xx failures are transient (plain error, safe
// to retry); response-shape failures are wrapped with retry.Permanent.
func (c *Client) FetchRecentTransactions(ctx context.Context, seqStart uint64) ([]feesample.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions", nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("horizon: build request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("horizon: fetch transactions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("horizon: upstream returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.Permanent(fmt.Errorf("horizon: upstream returned %d", resp.StatusCode))
	}

	var records []transactionRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, retry.Permanent(fmt.Errorf("horizon: decode transactions: %w", err))
	}

	samples := make([]feesample.Sample, 0, len(records))
	seq := seqStart
	for _, rec := range records {
		if !rec.Successful {
			continue
		}
		ts, err := time.Parse(time.RFC3339, rec.CreatedAt)
		if err != nil {
			continue
		}
		fee, err := strconv.ParseFloat(rec.FeeCharged, 64)
		if err != nil || fee <= 0 {
			continue
		}
		samples = append(samples, feesample.Sample{
			FeeAmount:     int64(fee),
			Timestamp:     ts.UTC(),
			TransactionID: rec.Hash,
			Sequence:      seq,
		})
		seq++
	}
	return samples, nil
}

// FetchFeeStats retrieves the current upstream fee-stats snapshot.
func (c *Client) FetchFeeStats(ctx context.Context) (FeeStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fee_stats", nil)
	if err != nil {
		return FeeStats{}, retry.Permanent(fmt.Errorf("horizon: build request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return FeeStats{}, fmt.Errorf("horizon: fetch fee stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return FeeStats{}, fmt.Errorf("horizon: upstream returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return FeeStats{}, retry.Permanent(fmt.Errorf("horizon: upstream returned %d", resp.StatusCode))
	}

	var body feeStatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return FeeStats{}, retry.Permanent(fmt.Errorf("horizon: decode fee stats: %w", err))
	}

	baseFee, err := strconv.ParseInt(body.LastLedgerBaseFee, 10, 64)
	if err != nil {
		return FeeStats{}, retry.Permanent(fmt.Errorf("horizon: parse last_ledger_base_fee: %w", err))
	}

	return FeeStats{
		LastLedgerBaseFee: baseFee,
		Min:               body.FeeCharged.Min,
		Max:               body.FeeCharged.Max,
		Avg:               body.FeeCharged.Avg,
		Percentiles: Percentiles{
			P10: body.FeeCharged.P10,
			P25: body.FeeCharged.P25,
			P50: body.FeeCharged.P50,
			P75: body.FeeCharged.P75,
			P90: body.FeeCharged.P90,
			P95: body.FeeCharged.P95,
		},
	}, nil
}
