package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_InsertAndSinceAndPrune(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	samples := []feesample.Sample{
		{FeeAmount: 100, Timestamp: base, TransactionID: "a", Sequence: 0},
		{FeeAmount: 200, Timestamp: base.Add(time.Hour), TransactionID: "b", Sequence: 1},
	}
	require.NoError(t, m.InsertSamples(ctx, samples))

	since, err := m.SamplesSince(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "b", since[0].TransactionID)

	removed, err := m.PruneBefore(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := m.SamplesSince(ctx, base)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].TransactionID)
}

func TestMemoryStore_InsertSamplesEmptyBatchIsNoOp(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.InsertSamples(context.Background(), nil))
	got, _ := m.SamplesSince(context.Background(), time.Time{})
	assert.Empty(t, got)
}

func TestMemoryStore_AlertConfigCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	id, err := m.CreateAlertConfig(ctx, "https://example.com/hook", ThresholdMajor)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	configs, err := m.ListAlertConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.True(t, configs[0].Enabled)

	newThreshold := ThresholdCritical
	ok, err := m.UpdateAlertConfig(ctx, id, &newThreshold, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	configs, _ = m.ListAlertConfigs(ctx)
	assert.Equal(t, ThresholdCritical, configs[0].Threshold)

	ok, err = m.SoftDeleteAlertConfig(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	configs, _ = m.ListAlertConfigs(ctx)
	assert.False(t, configs[0].Enabled)

	ok, err = m.UpdateAlertConfig(ctx, "missing", &newThreshold, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_AlertEventsQueryAndCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	delivered := true
	notDelivered := false
	require.NoError(t, m.LogAlertEvent(ctx, AlertEvent{Severity: "Critical", Delivered: delivered}))
	require.NoError(t, m.LogAlertEvent(ctx, AlertEvent{Severity: "Major", Delivered: notDelivered}))

	events, err := m.QueryAlertEvents(ctx, 10, AlertEventFilter{Severity: "Critical"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Delivered)

	count, err := m.CountAlertEvents(ctx, AlertEventFilter{Delivered: &notDelivered})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClampHistoryLimit(t *testing.T) {
	assert.Equal(t, 1, ClampHistoryLimit(0))
	assert.Equal(t, 1, ClampHistoryLimit(-5))
	assert.Equal(t, 100, ClampHistoryLimit(500))
	assert.Equal(t, 42, ClampHistoryLimit(42))
}
