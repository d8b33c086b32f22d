package horizon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRecentTransactions_DiscardsUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"hash":"a","ledger":1,"created_at":"2026-01-01T00:00:00Z","fee_charged":"100","successful":true},
			{"hash":"b","ledger":2,"created_at":"2026-01-01T00:01:00Z","fee_charged":"200","successful":false}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	samples, err := c.FetchRecentTransactions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "a", samples[0].TransactionID)
	assert.Equal(t, int64(100), samples[0].FeeAmount)
}

func TestFetchRecentTransactions_5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchRecentTransactions(context.Background(), 0)
	require.Error(t, err)
	assert.False(t, isPermanent(err))
}

func TestFetchRecentTransactions_BadJSONIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchRecentTransactions(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, isPermanent(err))
}

func TestFetchFeeStats_ParsesDecimalStrings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"last_ledger_base_fee": "100",
			"fee_charged": {"min":"100","max":"500","avg":"150","p10":"100","p25":"110","p50":"150","p75":"200","p90":"400","p95":"500"}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	stats, err := c.FetchFeeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), stats.LastLedgerBaseFee)
	assert.Equal(t, 500.0, stats.Max)
	assert.Equal(t, 500.0, stats.Percentiles.P95)
}

func isPermanent(err error) bool {
	var pe *retry.PermanentError
	return errors.As(err, &pe)
}
