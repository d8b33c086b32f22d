// Package feesample defines the core fee-sample value types shared by the
// history store, insights engine, and repository.
package feesample

import (
	"fmt"
	"time"
)

// MaxFeeAmount is the upper bound on a single sample's fee, in stroops.
const MaxFeeAmount = 1_000_000_000

// ClockSkewTolerance bounds how far into the future a sample's timestamp may
// fall before it is rejected.
const ClockSkewTolerance = 1 * time.Hour

// DefaultCapacityHint is the default max_buffer_size for per-window FIFOs
// and the default History Store capacity.
const DefaultCapacityHint = 10_000

// Sample is an immutable fee observation pulled from the upstream source.
type Sample struct {
	FeeAmount     int64
	Timestamp     time.Time
	TransactionID string
	Sequence      uint64
}

// Less orders samples by timestamp, breaking ties by sequence.
func (s Sample) Less(other Sample) bool {
	if !s.Timestamp.Equal(other.Timestamp) {
		return s.Timestamp.Before(other.Timestamp)
	}
	return s.Sequence < other.Sequence
}

// Validate checks the invariants from the data model: fee_amount in
// [1, 10^9], non-empty transaction id, and a timestamp not further in the
// future than the clock-skew tolerance.
func (s Sample) Validate(now time.Time) error {
	if s.FeeAmount < 1 || s.FeeAmount > MaxFeeAmount {
		return fmt.Errorf("fee_amount %d out of range [1, %d]", s.FeeAmount, int64(MaxFeeAmount))
	}
	if s.TransactionID == "" {
		return fmt.Errorf("transaction_id must not be empty")
	}
	if s.Timestamp.After(now.Add(ClockSkewTolerance)) {
		return fmt.Errorf("timestamp %s is too far in the future (now=%s)", s.Timestamp, now)
	}
	return nil
}

// Window is a named rolling interval with a minimum-sample threshold for
// treating an average as non-partial.
type Window struct {
	Name       string
	Duration   time.Duration
	MinSamples int
}

// Identity of the three windows the insights engine recognizes.
const (
	ShortTerm  = "short_term"
	MediumTerm = "medium_term"
	LongTerm   = "long_term"
)

// DefaultWindows returns the three named windows with their default
// durations and minimum sample counts.
func DefaultWindows() []Window {
	return []Window{
		{Name: ShortTerm, Duration: 1 * time.Hour, MinSamples: 10},
		{Name: MediumTerm, Duration: 6 * time.Hour, MinSamples: 30},
		{Name: LongTerm, Duration: 24 * time.Hour, MinSamples: 100},
	}
}
