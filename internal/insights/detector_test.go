package insights

import (
	"testing"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_RejectsNonPositiveBaseline(t *testing.T) {
	_, err := Detect(nil, 0, DefaultDetectorConfig())
	assert.Error(t, err)
}

func TestDetect_EmitsSpikeAboveDurationThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultDetectorConfig()
	samples := []feesample.Sample{
		sampleAt(now, 250, 0),
		sampleAt(now.Add(3*time.Minute), 300, 1),
		sampleAt(now.Add(6*time.Minute), 200, 2),
		sampleAt(now.Add(7*time.Minute), 50, 3),
	}

	spikes, err := Detect(samples, 100, cfg)
	require.NoError(t, err)
	require.Len(t, spikes, 1)
	assert.Equal(t, int64(300), spikes[0].PeakFee)
	assert.Equal(t, SeverityModerate, spikes[0].Severity)
}

func TestDetect_DropsSpikeShorterThanMinimumDuration(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultDetectorConfig()
	samples := []feesample.Sample{
		sampleAt(now, 300, 0),
		sampleAt(now.Add(time.Minute), 50, 1),
	}

	spikes, err := Detect(samples, 100, cfg)
	require.NoError(t, err)
	assert.Empty(t, spikes)
}

func TestDetect_ClosesTrailingOpenCandidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultDetectorConfig()
	samples := []feesample.Sample{
		sampleAt(now, 1000, 0),
		sampleAt(now.Add(10*time.Minute), 1200, 1),
	}

	spikes, err := Detect(samples, 100, cfg)
	require.NoError(t, err)
	require.Len(t, spikes, 1)
	assert.Equal(t, SeverityCritical, spikes[0].Severity)
}

func TestClassifySeverity(t *testing.T) {
	assert.Equal(t, SeverityMinor, ClassifySeverity(2.9))
	assert.Equal(t, SeverityModerate, ClassifySeverity(3))
	assert.Equal(t, SeverityMajor, ClassifySeverity(5))
	assert.Equal(t, SeverityCritical, ClassifySeverity(10))
}

func TestDetector_AnalyzeEvictsOldRingEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDetector(DefaultDetectorConfig())

	samples := []feesample.Sample{
		sampleAt(now, 1000, 0),
		sampleAt(now.Add(10*time.Minute), 1100, 1),
	}
	trends, newSpikes, err := d.Analyze(samples, 100, now.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, newSpikes, 1)
	assert.Equal(t, TrendCongested, trends.CurrentTrend)

	later := now.Add(3 * time.Hour)
	trends2, _, err := d.Analyze(nil, 100, later)
	require.NoError(t, err)
	assert.Empty(t, trends2.RecentSpikes)
	assert.Equal(t, TrendNormal, trends2.CurrentTrend)
}
