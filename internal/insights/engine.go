package insights

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
)

// ErrInvalidData is returned when a batch handed to the engine is empty or
// contains a sample that fails validation.
var ErrInvalidData = errors.New("insights: invalid data")

// ProcessResult is returned by Process, reporting what the tick produced and
// how long it took.
type ProcessResult struct {
	Snapshot         CurrentInsights
	ProcessingTime   time.Duration
	SamplesProcessed int
	NewSpikes        []FeeSpike
}

// EngineConfig configures the three owned components.
type EngineConfig struct {
	Windows         []feesample.Window
	MaxBufferSize   int
	TrackingPeriod  time.Duration
	ExtremesHistory int
	Detector        DetectorConfig
	PollInterval    time.Duration
}

// DefaultEngineConfig returns the default window set and tracking settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Windows:         feesample.DefaultWindows(),
		MaxBufferSize:   feesample.DefaultCapacityHint,
		TrackingPeriod:  1 * time.Hour,
		ExtremesHistory: 30,
		Detector:        DefaultDetectorConfig(),
		PollInterval:    1 * time.Minute,
	}
}

// Engine owns a Calculator, a Tracker, and a Detector, and assembles one
// coherent CurrentInsights snapshot per tick. Safe for concurrent use: all
// mutation happens under Process, which holds an exclusive lock; read-side
// accessors take a shared lock and copy out before returning.
type Engine struct {
	cfg EngineConfig

	mu         sync.RWMutex
	calculator *Calculator
	tracker    *Tracker
	detector   *Detector
	lastUpdate time.Time
	snapshot   CurrentInsights
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		cfg:        cfg,
		calculator: NewCalculator(cfg.Windows, cfg.MaxBufferSize),
		tracker:    NewTracker(cfg.TrackingPeriod, cfg.ExtremesHistory),
		detector:   NewDetector(cfg.Detector),
	}
}

// Process validates and folds a batch of samples into the engine's
// components, then assembles and stores a new snapshot. now is the
// reference time for window eviction, period rotation, and data-quality
// calculations.
func (e *Engine) Process(samples []feesample.Sample, now time.Time) (ProcessResult, error) {
	start := time.Now()
	if len(samples) == 0 {
		return ProcessResult{}, fmt.Errorf("%w: empty batch", ErrInvalidData)
	}
	for i, s := range samples {
		if err := s.Validate(now); err != nil {
			return ProcessResult{}, fmt.Errorf("%w: sample %d: %v", ErrInvalidData, i, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range samples {
		e.calculator.AddSample(s, now)
	}
	e.tracker.Update(samples, now)

	averages := e.calculator.Averages(now)
	baseline := averages[feesample.MediumTerm].Value

	var trends CongestionTrends
	var newSpikes []FeeSpike
	if baseline > 0 {
		var err error
		trends, newSpikes, err = e.detector.Analyze(samples, baseline, now)
		if err != nil {
			return ProcessResult{}, err
		}
	}

	extremes, ok := e.tracker.Current()
	var extremesPtr *FeeExtremes
	if ok {
		extremesPtr = &extremes
	}

	quality := e.computeDataQuality(samples, now)

	snapshot := CurrentInsights{
		RollingAverages: averages,
		Extremes:        extremesPtr,
		CongestionTrend: trends,
		LastUpdated:     now,
		DataQuality:     quality,
	}
	e.snapshot = snapshot
	e.lastUpdate = now

	return ProcessResult{
		Snapshot:         snapshot,
		ProcessingTime:   time.Since(start),
		SamplesProcessed: len(samples),
		NewSpikes:        newSpikes,
	}, nil
}

func (e *Engine) computeDataQuality(samples []feesample.Sample, now time.Time) DataQuality {
	var freshness time.Duration
	var expected float64 = 1
	if !e.lastUpdate.IsZero() {
		freshness = now.Sub(e.lastUpdate)
		if e.cfg.PollInterval > 0 {
			expected = float64(freshness) / float64(e.cfg.PollInterval)
			if expected < 1 {
				expected = 1
			}
		}
	}
	completeness := float64(len(samples)) / expected
	if completeness > 1 {
		completeness = 1
	}

	hasGaps := false
	var lastGap *time.Time
	cutoff := now.Add(-1 * time.Hour)
	for _, s := range samples {
		if s.Timestamp.Before(cutoff) {
			hasGaps = true
			break
		}
	}
	if hasGaps {
		g := now
		lastGap = &g
	}

	return DataQuality{
		Completeness: completeness,
		Freshness:    freshness,
		HasGaps:      hasGaps,
		LastGap:      lastGap,
	}
}

// Current returns the most recently assembled snapshot. Never fails; returns
// the zero value before the first successful Process call.
func (e *Engine) Current() CurrentInsights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Averages returns the rolling averages over the samples currently held in
// each window, stamped with now. Stale samples are evicted only when a
// sample is added, not by this call.
func (e *Engine) Averages(now time.Time) map[string]AverageResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.calculator.Averages(now)
}

// Extremes returns the current extremes period, or false if insufficient
// data has been observed.
func (e *Engine) Extremes() (FeeExtremes, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tracker.Current()
}

// Congestion returns the most recently computed congestion trends.
func (e *Engine) Congestion() CongestionTrends {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.CongestionTrend
}

// Reset reconstructs the Calculator, Tracker, and Detector, and clears
// last_update.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calculator = NewCalculator(e.cfg.Windows, e.cfg.MaxBufferSize)
	e.tracker = NewTracker(e.cfg.TrackingPeriod, e.cfg.ExtremesHistory)
	e.detector = NewDetector(e.cfg.Detector)
	e.lastUpdate = time.Time{}
	e.snapshot = CurrentInsights{}
}
