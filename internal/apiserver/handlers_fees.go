package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stellar-fee-tracker/insights-service/internal/insights"
	"github.com/stellar-fee-tracker/insights-service/internal/logging"
	"github.com/stellar-fee-tracker/insights-service/internal/repository"
)

var historyWindows = map[string]time.Duration{
	"1h":  1 * time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
}

type percentilesResponse struct {
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

type feesCurrentResponse struct {
	BaseFee     int64                `json:"base_fee"`
	MinFee      float64              `json:"min_fee"`
	MaxFee      float64              `json:"max_fee"`
	AvgFee      float64              `json:"avg_fee"`
	Percentiles percentilesResponse  `json:"percentiles"`
}

// feesCurrentHandler serves the latest upstream fee-stats snapshot, cached
// in-process for cfg.CacheTTL to avoid hammering the upstream source on
// every request. Each cache refresh is persisted via repo.InsertSnapshot.
func (s *Server) feesCurrentHandler(c *gin.Context) {
	now := s.now()

	s.statsMu.Lock()
	stale := s.statsFetched.IsZero() || now.Sub(s.statsFetched) >= s.cfg.CacheTTL
	if stale {
		stats, err := s.feeStats.FetchFeeStats(c.Request.Context())
		if err != nil {
			s.statsMu.Unlock()
			logging.L(c.Request.Context()).Warn("fetch fee stats failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_unavailable"})
			return
		}
		s.cachedStats = stats
		s.statsFetched = now
		snapCtx := context.WithoutCancel(c.Request.Context())
		go func() {
			snap := repository.FeeSnapshot{
				BaseFee:    stats.LastLedgerBaseFee,
				MinFee:     stats.Min,
				MaxFee:     stats.Max,
				AvgFee:     stats.Avg,
				CapturedAt: now,
			}
			if err := s.repo.InsertSnapshot(snapCtx, snap); err != nil {
				s.logger.Warn("insert fee snapshot failed", "error", err)
			}
		}()
	}
	stats := s.cachedStats
	s.statsMu.Unlock()

	body := feesCurrentResponse{
		BaseFee: stats.LastLedgerBaseFee,
		MinFee:  stats.Min,
		MaxFee:  stats.Max,
		AvgFee:  stats.Avg,
		Percentiles: percentilesResponse{
			P10: stats.Percentiles.P10,
			P25: stats.Percentiles.P25,
			P50: stats.Percentiles.P50,
			P75: stats.Percentiles.P75,
			P90: stats.Percentiles.P90,
			P95: stats.Percentiles.P95,
		},
	}

	etag := computeETag(marshalForETag(body))
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("ETag", etag)
	c.JSON(http.StatusOK, body)
}

type feesSummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
}

type feesHistoryResponse struct {
	Window     string      `json:"window"`
	From       time.Time   `json:"from"`
	To         time.Time   `json:"to"`
	DataPoints int         `json:"data_points"`
	Fees       []int64     `json:"fees"`
	Summary    feesSummary `json:"summary"`
}

// feesHistoryHandler returns the raw fee samples within a named window and
// a computed summary: data_points equals the number of retained samples in
// range, and summary reflects that set.
func (s *Server) feesHistoryHandler(c *gin.Context) {
	window := c.DefaultQuery("window", "1h")
	duration, ok := historyWindows[window]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown window", "message": fmt.Sprintf("window must be one of 1h, 6h, 24h (got %q)", window)})
		return
	}

	now := s.now()
	from := now.Add(-duration)
	samples := s.store.Since(from)

	fees := make([]int64, len(samples))
	for i, sm := range samples {
		fees[i] = sm.FeeAmount
	}
	min, max, avg, p50, p95 := feeSummary(fees)

	c.JSON(http.StatusOK, feesHistoryResponse{
		Window:     window,
		From:       from,
		To:         now,
		DataPoints: len(samples),
		Fees:       fees,
		Summary: feesSummary{
			Min: min,
			Max: max,
			Avg: avg,
			P50: p50,
			P95: p95,
		},
	})
}

type trendChanges struct {
	OneHourPct      *float64 `json:"1h_pct"`
	SixHourPct      *float64 `json:"6h_pct"`
	TwentyFourHrPct *float64 `json:"24h_pct"`
}

type feesTrendResponse struct {
	Status                     string       `json:"status"`
	TrendStrength              string       `json:"trend_strength"`
	Changes                    trendChanges `json:"changes"`
	RecentSpikeCount           int          `json:"recent_spike_count"`
	PredictedCongestionMinutes *float64     `json:"predicted_congestion_minutes,omitempty"`
	LastUpdated                time.Time    `json:"last_updated"`
}

// feesTrendHandler summarizes congestion direction. "changes" is each named
// window's rolling average expressed as a percent change relative to the
// long_term baseline average; a window whose average is still partial
// reports null rather than a misleading figure.
func (s *Server) feesTrendHandler(c *gin.Context) {
	now := s.now()
	averages := s.engine.Averages(now)
	congestion := s.engine.Congestion()

	baseline := averages[feesample.LongTerm]
	changes := trendChanges{
		OneHourPct:      pctChange(averages[feesample.ShortTerm], baseline),
		SixHourPct:      pctChange(averages[feesample.MediumTerm], baseline),
		TwentyFourHrPct: pctChange(averages[feesample.LongTerm], baseline),
	}

	var predicted *float64
	if congestion.PredictedDuration != nil {
		minutes := congestion.PredictedDuration.Minutes()
		predicted = &minutes
	}

	c.JSON(http.StatusOK, feesTrendResponse{
		Status:                     congestion.CurrentTrend.String(),
		TrendStrength:              congestion.TrendStrength.String(),
		Changes:                    changes,
		RecentSpikeCount:           len(congestion.RecentSpikes),
		PredictedCongestionMinutes: predicted,
		LastUpdated:                s.engine.Current().LastUpdated,
	})
}

func pctChange(window, baseline insights.AverageResult) *float64 {
	if window.IsPartial || baseline.IsPartial || baseline.Value == 0 {
		return nil
	}
	pct := ((window.Value - baseline.Value) / baseline.Value) * 100
	return &pct
}
