package insights

import (
	"testing"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_InsufficientDataBeforeFirstUpdate(t *testing.T) {
	tr := NewTracker(time.Hour, 30)
	_, ok := tr.Current()
	assert.False(t, ok)
}

func TestTracker_MinMaxTracking(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Hour, 30)

	samples := []feesample.Sample{
		sampleAt(now, 500, 0),
		sampleAt(now.Add(time.Minute), 100, 1),
		sampleAt(now.Add(2*time.Minute), 900, 2),
	}
	tr.Update(samples, now)

	ext, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, int64(100), ext.Min.Value)
	assert.Equal(t, int64(900), ext.Max.Value)
}

func TestTracker_TieFirstSeenWins(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Hour, 30)

	first := sampleAt(now, 500, 0)
	first.TransactionID = "first"
	second := sampleAt(now.Add(time.Minute), 500, 1)
	second.TransactionID = "second"

	tr.Update([]feesample.Sample{first, second}, now)

	ext, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, "first", ext.Min.TransactionID)
	assert.Equal(t, "first", ext.Max.TransactionID)
}

func TestTracker_RotatesAfterPeriodExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Hour, 30)

	tr.Update([]feesample.Sample{sampleAt(now, 100, 0)}, now)
	later := now.Add(2 * time.Hour)
	tr.Update([]feesample.Sample{sampleAt(later, 200, 1)}, later)

	ext, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, int64(200), ext.Min.Value)

	history := tr.History()
	require.Len(t, history, 1)
	assert.Equal(t, int64(100), history[0].Min.Value)
}
