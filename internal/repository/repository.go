// Package repository persists fee samples, periodic fee-stats snapshots,
// alert configurations, and alert events in PostgreSQL.
package repository

import (
	"context"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
)

// FeeSnapshot is a periodic capture of upstream fee-stats, independent of
// individual samples.
type FeeSnapshot struct {
	BaseFee   int64
	MinFee    float64
	MaxFee    float64
	AvgFee    float64
	CapturedAt time.Time
}

// ConfigThreshold is the three user-visible alert severity levels a config
// may be set to. Moderate is an internal-only Severity value and is never a
// valid threshold.
type ConfigThreshold int

const (
	ThresholdMinor ConfigThreshold = iota
	ThresholdMajor
	ThresholdCritical
)

// String renders the threshold name.
func (t ConfigThreshold) String() string {
	switch t {
	case ThresholdMinor:
		return "Minor"
	case ThresholdMajor:
		return "Major"
	case ThresholdCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// ParseConfigThreshold parses the user-facing threshold names, defaulting to
// an error on anything else.
func ParseConfigThreshold(s string) (ConfigThreshold, bool) {
	switch s {
	case "Minor":
		return ThresholdMinor, true
	case "Major":
		return ThresholdMajor, true
	case "Critical":
		return ThresholdCritical, true
	default:
		return 0, false
	}
}

// AlertConfig is a webhook subscription for spikes at or above a threshold
// severity.
type AlertConfig struct {
	ID         string
	WebhookURL string
	Threshold  ConfigThreshold
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AlertEvent records one dispatch attempt, successful or not. Every
// dispatch produces exactly one row.
type AlertEvent struct {
	ID          int64
	ConfigID    string // empty when no config is threaded through
	Severity    string
	PeakFee     int64
	BaselineFee float64
	SpikeRatio  float64
	WebhookURL  string
	Delivered   bool
	TriggeredAt time.Time
}

// AlertEventFilter narrows a history query; zero values mean "no filter".
type AlertEventFilter struct {
	Severity  string
	Delivered *bool
}

// Repository is the durable store for samples, snapshots, alert
// configurations, and alert events. Implementations must never panic on a
// malformed row — skip it and continue.
type Repository interface {
	InsertSamples(ctx context.Context, samples []feesample.Sample) error
	SamplesSince(ctx context.Context, t time.Time) ([]feesample.Sample, error)
	PruneBefore(ctx context.Context, t time.Time) (int64, error)
	InsertSnapshot(ctx context.Context, snap FeeSnapshot) error

	CreateAlertConfig(ctx context.Context, webhookURL string, threshold ConfigThreshold) (string, error)
	ListAlertConfigs(ctx context.Context) ([]AlertConfig, error)
	UpdateAlertConfig(ctx context.Context, id string, threshold *ConfigThreshold, enabled *bool) (bool, error)
	SoftDeleteAlertConfig(ctx context.Context, id string) (bool, error)

	LogAlertEvent(ctx context.Context, event AlertEvent) error
	QueryAlertEvents(ctx context.Context, limit int, filter AlertEventFilter) ([]AlertEvent, error)
	CountAlertEvents(ctx context.Context, filter AlertEventFilter) (int64, error)
}

// ClampHistoryLimit bounds a requested alert-history page size to [1, 100].
func ClampHistoryLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > 100 {
		return 100
	}
	return limit
}
