package history

import (
	"testing"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(t time.Time, seq uint64, fee int64) feesample.Sample {
	return feesample.Sample{
		FeeAmount:     fee,
		Timestamp:     t,
		TransactionID: "tx",
		Sequence:      seq,
	}
}

func TestStore_PushRespectsCapacity(t *testing.T) {
	s := New(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Push(sampleAt(base.Add(time.Duration(i)*time.Minute), uint64(i), int64(100+i)))
	}

	require.Equal(t, 3, s.Len())
	last := s.LastN(3)
	require.Len(t, last, 3)
	// Retained suffix equals the most recent min(|S|, capacity) samples,
	// in insertion order.
	assert.Equal(t, uint64(2), last[0].Sequence)
	assert.Equal(t, uint64(3), last[1].Sequence)
	assert.Equal(t, uint64(4), last[2].Sequence)
}

func TestStore_Since(t *testing.T) {
	s := New(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Push(sampleAt(base.Add(time.Duration(i)*time.Hour), uint64(i), 100))
	}

	recent := s.Since(base.Add(2 * time.Hour))
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(2), recent[0].Sequence)
	assert.Equal(t, uint64(4), recent[2].Sequence)
}

func TestStore_LastN_MoreThanLen(t *testing.T) {
	s := New(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Push(sampleAt(base, 0, 100))
	s.Push(sampleAt(base.Add(time.Minute), 1, 200))

	got := s.LastN(10)
	assert.Len(t, got, 2)
}

func TestStore_ClearAndEmpty(t *testing.T) {
	s := New(2)
	assert.True(t, s.IsEmpty())
	s.Push(sampleAt(time.Now(), 0, 100))
	assert.False(t, s.IsEmpty())
	s.Clear()
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.Len())
}

func TestStore_DefaultCapacity(t *testing.T) {
	s := New(0)
	assert.Equal(t, DefaultCapacity, s.Capacity())
}
