package insights

import (
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
)

// windowBuffer is a time-bounded FIFO for one named window. Eviction is
// time-based (oldest-timestamp-first), falling back to count-based only once
// the buffer is saturated at capacity.
type windowBuffer struct {
	window   feesample.Window
	samples  []feesample.Sample
	capacity int
	sum      int64
	count    uint64
}

func newWindowBuffer(w feesample.Window, capacity int) *windowBuffer {
	if capacity <= 0 {
		capacity = feesample.DefaultCapacityHint
	}
	return &windowBuffer{
		window:   w,
		samples:  make([]feesample.Sample, 0, capacity),
		capacity: capacity,
	}
}

func (b *windowBuffer) add(s feesample.Sample, now time.Time) {
	if s.Timestamp.Before(now.Add(-b.window.Duration)) {
		return
	}
	if len(b.samples) >= b.capacity {
		evicted := b.samples[0]
		b.samples = b.samples[1:]
		b.sum -= evicted.FeeAmount
		b.count--
	}
	b.samples = append(b.samples, s)
	b.sum += s.FeeAmount
	b.count++

	b.evictStale(now)
}

// evictStale drops samples from the front whose timestamp has aged out of
// the window, independent of capacity.
func (b *windowBuffer) evictStale(now time.Time) {
	cutoff := now.Add(-b.window.Duration)
	i := 0
	for i < len(b.samples) && b.samples[i].Timestamp.Before(cutoff) {
		b.sum -= b.samples[i].FeeAmount
		b.count--
		i++
	}
	if i > 0 {
		b.samples = b.samples[i:]
	}
}

func (b *windowBuffer) average(now time.Time) AverageResult {
	if len(b.samples) == 0 {
		return AverageResult{
			Value:        0,
			SampleCount:  0,
			IsPartial:    true,
			CalculatedAt: now,
			Window:       b.window,
		}
	}
	value := float64(b.sum) / float64(b.count)
	return AverageResult{
		Value:        value,
		SampleCount:  len(b.samples),
		IsPartial:    len(b.samples) < b.window.MinSamples,
		CalculatedAt: now,
		Window:       b.window,
	}
}

// Calculator maintains one FIFO per configured time window and produces
// rolling averages. The sum accumulator is an int64, wide enough to hold
// capacity(10,000) * max_fee_amount(10^9) well under 2^63; the mean is only
// ever computed as a final real division, never by summing floats.
type Calculator struct {
	buffers  map[string]*windowBuffer
	order    []string
	capacity int
}

// NewCalculator builds a Calculator over the given windows, each buffer
// bounded to maxBufferSize (falls back to feesample.DefaultCapacityHint when
// non-positive).
func NewCalculator(windows []feesample.Window, maxBufferSize int) *Calculator {
	c := &Calculator{
		buffers:  make(map[string]*windowBuffer, len(windows)),
		capacity: maxBufferSize,
	}
	for _, w := range windows {
		c.buffers[w.Name] = newWindowBuffer(w, maxBufferSize)
		c.order = append(c.order, w.Name)
	}
	return c
}

// AddSample feeds one sample into every configured window whose duration it
// falls within, evicting stale entries from each window afterward.
func (c *Calculator) AddSample(s feesample.Sample, now time.Time) {
	for _, name := range c.order {
		c.buffers[name].add(s, now)
	}
}

// Averages returns one AverageResult per configured window, keyed by name.
func (c *Calculator) Averages(now time.Time) map[string]AverageResult {
	out := make(map[string]AverageResult, len(c.order))
	for _, name := range c.order {
		out[name] = c.buffers[name].average(now)
	}
	return out
}
