// Package alerts dispatches webhook notifications for newly-detected fee
// spikes and records exactly one AlertEvent row per (spike, matching
// config) pair, regardless of delivery outcome.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/circuitbreaker"
	"github.com/stellar-fee-tracker/insights-service/internal/insights"
	"github.com/stellar-fee-tracker/insights-service/internal/metrics"
	"github.com/stellar-fee-tracker/insights-service/internal/repository"
)

// thresholdOrdinal maps a ConfigThreshold to the same ordering scale as
// insights.Severity, so a config's threshold can be compared against a
// spike's four-valued severity. Moderate has no configurable threshold;
// a config set to Minor matches Moderate and above.
func thresholdOrdinal(t repository.ConfigThreshold) int {
	switch t {
	case repository.ThresholdMinor:
		return insights.SeverityMinor.Ordinal()
	case repository.ThresholdMajor:
		return insights.SeverityMajor.Ordinal()
	case repository.ThresholdCritical:
		return insights.SeverityCritical.Ordinal()
	default:
		return insights.SeverityCritical.Ordinal()
	}
}

// Matches reports whether a spike's severity meets or exceeds a config's
// configured threshold.
func Matches(spike insights.FeeSpike, cfg repository.AlertConfig) bool {
	return cfg.Enabled && spike.Severity.Ordinal() >= thresholdOrdinal(cfg.Threshold)
}

type webhookPayload struct {
	Severity    string  `json:"severity"`
	PeakFee     int64   `json:"peak_fee"`
	BaselineFee float64 `json:"baseline_fee"`
	SpikeRatio  float64 `json:"spike_ratio"`
	WebhookURL  string  `json:"webhook_url"`
}

// Dispatcher sends a best-effort webhook POST per matching config for every
// newly-detected spike and logs one AlertEvent row for every attempt. The
// dispatcher itself never retries; retry is the operator's responsibility.
// A per-webhook circuit breaker skips the network call entirely once a
// webhook has failed repeatedly, so one dead endpoint can't stall delivery
// to every other config on each tick.
type Dispatcher struct {
	repo    repository.Repository
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewDispatcher builds a Dispatcher with a bounded per-request timeout
// (default 10s). The circuit breaker opens after 5 consecutive failures for
// a given webhook and probes again after 1 minute.
func NewDispatcher(repo repository.Repository, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		repo:    repo,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(5, 1*time.Minute),
	}
}

// Dispatch sends the spike to every enabled config whose threshold severity
// is at or below the spike's severity, and logs one AlertEvent per attempt.
// Delivery errors never propagate; they are folded into the event's
// Delivered flag. A LogAlertEvent failure is a StorageWrite error: it is
// returned to the caller to log, but does not stop remaining deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, spike insights.FeeSpike, configs []repository.AlertConfig) []error {
	var logErrs []error
	for _, cfg := range configs {
		if !Matches(spike, cfg) {
			continue
		}

		delivered := d.send(ctx, cfg.WebhookURL, spike)

		event := repository.AlertEvent{
			ConfigID:    cfg.ID,
			Severity:    spike.Severity.String(),
			PeakFee:     spike.PeakFee,
			BaselineFee: spike.BaselineFee,
			SpikeRatio:  spike.SpikeRatio,
			WebhookURL:  cfg.WebhookURL,
			Delivered:   delivered,
			TriggeredAt: time.Now().UTC(),
		}
		if err := d.repo.LogAlertEvent(ctx, event); err != nil {
			logErrs = append(logErrs, fmt.Errorf("alerts: log event for config %s: %w", cfg.ID, err))
		}
	}
	return logErrs
}

// send POSTs the spike payload to webhookURL and reports whether the
// outcome was a 2xx response. Any network outcome is acceptable; only the
// delivered flag records it. Skips the request entirely (and reports
// undelivered) if the breaker has tripped open for this webhook.
func (d *Dispatcher) send(ctx context.Context, webhookURL string, spike insights.FeeSpike) bool {
	if !d.breaker.Allow(webhookURL) {
		metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		return false
	}

	payload, err := json.Marshal(webhookPayload{
		Severity:    spike.Severity.String(),
		PeakFee:     spike.PeakFee,
		BaselineFee: spike.BaselineFee,
		SpikeRatio:  spike.SpikeRatio,
		WebhookURL:  webhookURL,
	})
	if err != nil {
		d.breaker.RecordFailure(webhookURL)
		metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		d.breaker.RecordFailure(webhookURL)
		metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fee-Tracker-Severity", spike.Severity.String())

	resp, err := d.client.Do(req)
	if err != nil {
		d.breaker.RecordFailure(webhookURL)
		metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		return false
	}
	defer resp.Body.Close()

	delivered := resp.StatusCode >= 200 && resp.StatusCode < 300
	if delivered {
		d.breaker.RecordSuccess(webhookURL)
		metrics.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
	} else {
		d.breaker.RecordFailure(webhookURL)
		metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
	}
	return delivered
}
