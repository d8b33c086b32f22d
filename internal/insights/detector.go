package insights

import (
	"fmt"
	"sort"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
)

// DetectorConfig tunes spike extraction and congestion scoring.
type DetectorConfig struct {
	ThresholdMultiplier float64
	MinimumSpikeDuration time.Duration
	CongestionWindow     time.Duration
}

// DefaultDetectorConfig returns the default spike-detection thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ThresholdMultiplier:  2.0,
		MinimumSpikeDuration: 5 * time.Minute,
		CongestionWindow:     1 * time.Hour,
	}
}

var severityWeight = map[Severity]float64{
	SeverityMinor:    1,
	SeverityModerate: 2,
	SeverityMajor:    4,
	SeverityCritical: 8,
}

// Detect runs the stateless sweep over samples against baseline, emitting
// classified FeeSpikes. baseline must be > 0.
func Detect(samples []feesample.Sample, baseline float64, cfg DetectorConfig) ([]FeeSpike, error) {
	if baseline <= 0 {
		return nil, fmt.Errorf("insights: baseline must be > 0, got %v", baseline)
	}

	ordered := make([]feesample.Sample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	threshold := baseline * cfg.ThresholdMultiplier

	var spikes []FeeSpike
	var open *FeeSpike

	emit := func(s *FeeSpike, endTime time.Time) {
		if s == nil {
			return
		}
		s.Duration = endTime.Sub(s.StartTime)
		if s.Duration >= cfg.MinimumSpikeDuration {
			s.BaselineFee = baseline
			s.SpikeRatio = float64(s.PeakFee) / baseline
			s.Severity = ClassifySeverity(s.SpikeRatio)
			spikes = append(spikes, *s)
		}
	}

	for _, s := range ordered {
		if float64(s.FeeAmount) >= threshold {
			if open == nil {
				open = &FeeSpike{
					PeakFee:   s.FeeAmount,
					StartTime: s.Timestamp,
					PeakTxID:  s.TransactionID,
				}
			} else {
				if s.FeeAmount > open.PeakFee {
					open.PeakFee = s.FeeAmount
					open.PeakTxID = s.TransactionID
				}
			}
			continue
		}
		if open != nil {
			emit(open, s.Timestamp)
			open = nil
		}
	}
	if open != nil && len(ordered) > 0 {
		emit(open, ordered[len(ordered)-1].Timestamp)
	}

	return spikes, nil
}

// Detector folds newly-detected spikes into a congestion-window ring and a
// bounded total history, and derives trend classification from the ring.
type Detector struct {
	cfg     DetectorConfig
	ring    []FeeSpike
	history []FeeSpike
}

const detectorHistoryCap = 1_000

// NewDetector builds a Detector with the given configuration.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Analyze runs Detect, folds the result into the ring and history, and
// returns the updated CongestionTrends plus the spikes newly emitted by this
// call.
func (d *Detector) Analyze(samples []feesample.Sample, baseline float64, now time.Time) (CongestionTrends, []FeeSpike, error) {
	newSpikes, err := Detect(samples, baseline, d.cfg)
	if err != nil {
		return CongestionTrends{}, nil, err
	}

	for _, sp := range newSpikes {
		d.ring = append(d.ring, sp)
		d.history = append(d.history, sp)
	}
	if len(d.history) > detectorHistoryCap {
		d.history = d.history[len(d.history)-detectorHistoryCap:]
	}

	cutoff := now.Add(-d.cfg.CongestionWindow)
	kept := d.ring[:0:0]
	for _, sp := range d.ring {
		if !sp.StartTime.Before(cutoff) {
			kept = append(kept, sp)
		}
	}
	d.ring = kept

	trends := CongestionTrends{
		RecentSpikes: append([]FeeSpike(nil), d.ring...),
	}
	trends.CurrentTrend = d.classifyTrend()
	trends.TrendStrength = d.classifyStrength()
	trends.PredictedDuration = d.predictDuration(trends.TrendStrength)

	return trends, newSpikes, nil
}

func (d *Detector) classifyTrend() Trend {
	n := len(d.ring)
	if n == 0 {
		return TrendNormal
	}
	if n >= 3 {
		recent := d.ring[n-2:]
		older := d.ring[:n-2]
		recentMean := meanRatio(recent)
		olderMean := meanRatio(older)
		if olderMean == 0 {
			return TrendCongested
		}
		ratio := recentMean / olderMean
		switch {
		case ratio > 1.2:
			return TrendRising
		case ratio < 0.8:
			return TrendDeclining
		default:
			return TrendCongested
		}
	}
	latest := d.ring[n-1]
	if latest.Severity == SeverityMajor || latest.Severity == SeverityCritical {
		return TrendCongested
	}
	return TrendRising
}

func meanRatio(spikes []FeeSpike) float64 {
	if len(spikes) == 0 {
		return 0
	}
	var sum float64
	for _, sp := range spikes {
		sum += sp.SpikeRatio
	}
	return sum / float64(len(spikes))
}

func (d *Detector) classifyStrength() TrendStrength {
	var score float64
	for _, sp := range d.ring {
		score += severityWeight[sp.Severity]
	}
	score += 0.5 * float64(len(d.ring))

	switch {
	case score >= 10:
		return StrengthStrong
	case score >= 4:
		return StrengthModerate
	case score > 0:
		return StrengthWeak
	default:
		return StrengthWeak
	}
}

func (d *Detector) predictDuration(strength TrendStrength) *time.Duration {
	if len(d.ring) == 0 {
		return nil
	}
	var total time.Duration
	for _, sp := range d.ring {
		total += sp.Duration
	}
	mean := total / time.Duration(len(d.ring))

	var multiplier float64
	switch strength {
	case StrengthStrong:
		multiplier = 2.0
	case StrengthModerate:
		multiplier = 1.5
	default:
		multiplier = 1.0
	}
	predicted := time.Duration(float64(mean) * multiplier)
	return &predicted
}
