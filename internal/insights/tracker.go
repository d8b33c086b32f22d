package insights

import (
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
)

type extremePeriod struct {
	periodStart time.Time
	periodEnd   time.Time
	min         *ExtremeValue
	max         *ExtremeValue
}

// Tracker maintains the current min/max period and a bounded history of
// closed periods. Tie policy on equal fee_amount is first-seen wins: a
// sample equal to the current min or max does not replace it.
type Tracker struct {
	trackingPeriod time.Duration
	historyCap     int
	current        extremePeriod
	closed         []extremePeriod
}

// NewTracker builds a Tracker with the given rotation period and closed-
// history capacity (default 30 when non-positive).
func NewTracker(trackingPeriod time.Duration, historyCap int) *Tracker {
	if historyCap <= 0 {
		historyCap = 30
	}
	return &Tracker{trackingPeriod: trackingPeriod, historyCap: historyCap}
}

// Update rotates the current period if it has expired, then folds every
// sample whose timestamp lies within the (possibly just-opened) period into
// the running min/max.
func (t *Tracker) Update(samples []feesample.Sample, now time.Time) {
	if t.current.periodEnd.IsZero() || !now.Before(t.current.periodEnd) {
		t.rotate(now)
	}

	for _, s := range samples {
		if s.Timestamp.Before(t.current.periodStart) || s.Timestamp.After(t.current.periodEnd) {
			continue
		}
		ev := ExtremeValue{Value: s.FeeAmount, Timestamp: s.Timestamp, TransactionID: s.TransactionID}
		if t.current.min == nil || ev.Value < t.current.min.Value {
			m := ev
			t.current.min = &m
		}
		if t.current.max == nil || ev.Value > t.current.max.Value {
			m := ev
			t.current.max = &m
		}
	}
}

func (t *Tracker) rotate(now time.Time) {
	if !t.current.periodEnd.IsZero() {
		t.closed = append(t.closed, t.current)
		if len(t.closed) > t.historyCap {
			t.closed = t.closed[len(t.closed)-t.historyCap:]
		}
	}
	t.current = extremePeriod{periodStart: now, periodEnd: now.Add(t.trackingPeriod)}
}

// Current returns the current period's extremes and whether both min and
// max are set (insufficient-data otherwise).
func (t *Tracker) Current() (FeeExtremes, bool) {
	if t.current.min == nil || t.current.max == nil {
		return FeeExtremes{}, false
	}
	return FeeExtremes{
		Min:         *t.current.min,
		Max:         *t.current.max,
		PeriodStart: t.current.periodStart,
		PeriodEnd:   t.current.periodEnd,
	}, true
}

// History returns the closed periods that have both min and max set, oldest
// first.
func (t *Tracker) History() []FeeExtremes {
	out := make([]FeeExtremes, 0, len(t.closed))
	for _, p := range t.closed {
		if p.min == nil || p.max == nil {
			continue
		}
		out = append(out, FeeExtremes{
			Min:         *p.min,
			Max:         *p.max,
			PeriodStart: p.periodStart,
			PeriodEnd:   p.periodEnd,
		})
	}
	return out
}
