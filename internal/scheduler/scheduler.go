// Package scheduler runs the periodic tick that polls the upstream fee
// source, fans out the result to the History Store, Repository, and
// Insights Engine, and dispatches alerts for newly-detected spikes.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/alerts"
	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stellar-fee-tracker/insights-service/internal/history"
	"github.com/stellar-fee-tracker/insights-service/internal/insights"
	"github.com/stellar-fee-tracker/insights-service/internal/metrics"
	"github.com/stellar-fee-tracker/insights-service/internal/repository"
	"github.com/stellar-fee-tracker/insights-service/internal/retry"
)

// RehydrationWindow is how far back the scheduler replays persisted samples
// on startup, before the first tick runs.
const RehydrationWindow = 24 * time.Hour

// Fetcher is the upstream collaborator; satisfied by *horizon.Client.
type Fetcher interface {
	FetchRecentTransactions(ctx context.Context, seqStart uint64) ([]feesample.Sample, error)
}

// Config configures one Scheduler.
type Config struct {
	PollInterval   time.Duration
	MaxAttempts    int
	BaseRetryDelay time.Duration
	RetentionPeriod time.Duration
}

// DefaultConfig returns the default polling and retention settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:    30 * time.Second,
		MaxAttempts:     3,
		BaseRetryDelay:  1 * time.Second,
		RetentionPeriod: 7 * 24 * time.Hour,
	}
}

// Scheduler owns the periodic tick. Every dependency it touches is already
// safe for concurrent use; the scheduler itself holds no state that the
// read API needs to see beyond what those dependencies expose.
type Scheduler struct {
	cfg    Config
	fetch  Fetcher
	store  *history.Store
	engine *insights.Engine
	repo   repository.Repository
	disp   *alerts.Dispatcher
	logger *slog.Logger
	now    func() time.Time

	nextSeq uint64
	seqMu   sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// New builds a Scheduler. logger defaults to slog.Default() if nil.
func New(cfg Config, fetch Fetcher, store *history.Store, engine *insights.Engine, repo repository.Repository, disp *alerts.Dispatcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		fetch:  fetch,
		store:  store,
		engine: engine,
		repo:   repo,
		disp:   disp,
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Rehydrate replays persisted samples from the last RehydrationWindow into
// the History Store and Engine before the first tick. Errors are logged,
// non-fatal: an empty or failed rehydration simply means the first real
// tick starts from a cold state.
func (s *Scheduler) Rehydrate(ctx context.Context) {
	since := s.now().Add(-RehydrationWindow)
	samples, err := s.repo.SamplesSince(ctx, since)
	if err != nil {
		s.logger.Warn("rehydration: failed to read persisted samples", "error", err)
		return
	}
	if len(samples) == 0 {
		return
	}

	for _, sm := range samples {
		s.store.Push(sm)
		if sm.Sequence >= s.nextSeqUnsafe() {
			s.setNextSeq(sm.Sequence + 1)
		}
	}
	if _, err := s.engine.Process(samples, s.now()); err != nil {
		s.logger.Warn("rehydration: engine process failed", "error", err)
	}
	s.logger.Info("rehydrated from storage", "samples", len(samples))
}

// Start runs the tick loop in a background goroutine until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop signals the loop to exit and waits for the in-flight tick, if any,
// to finish. It never cancels a tick mid-flight.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick executes one full cycle: fetch, store, process, persist, dispatch.
// It never returns an error; every failure mode is logged and absorbed so
// the main loop never dies from an upstream or storage hiccup.
func (s *Scheduler) runTick(ctx context.Context) {
	metrics.PollsTotal.Inc()
	now := s.now()

	seqStart := s.nextSeqUnsafe()
	samples, err := s.fetchWithRetry(ctx, seqStart)
	if err != nil {
		metrics.PollErrorsTotal.Inc()
		s.logger.Error("tick: fetch failed, skipping", "error", err)
		return
	}
	if len(samples) == 0 {
		s.logger.Warn("tick: upstream returned no samples")
		return
	}
	s.setNextSeq(samples[len(samples)-1].Sequence + 1)

	for _, sm := range samples {
		s.store.Push(sm)
	}
	metrics.FeePointsStored.Set(float64(s.store.Len()))

	result, err := s.engine.Process(samples, now)
	if err != nil {
		s.logger.Warn("tick: engine process failed", "error", err)
	} else {
		averages := result.Snapshot.RollingAverages
		metrics.CurrentAvgFee.Set(averages[feesample.MediumTerm].Value)
		metrics.SpikesDetectedTotal.Add(float64(len(result.NewSpikes)))
	}

	if err := s.repo.InsertSamples(ctx, samples); err != nil {
		s.logger.Warn("tick: failed to persist samples", "error", err)
	}
	if _, err := s.repo.PruneBefore(ctx, now.Add(-s.cfg.RetentionPeriod)); err != nil {
		s.logger.Warn("tick: failed to prune old samples", "error", err)
	}

	if err == nil && len(result.NewSpikes) > 0 {
		configs, cfgErr := s.repo.ListAlertConfigs(ctx)
		if cfgErr != nil {
			s.logger.Warn("tick: failed to list alert configs, skipping dispatch", "error", cfgErr)
			return
		}
		for _, spike := range result.NewSpikes {
			for _, dispatchErr := range s.disp.Dispatch(ctx, spike, configs) {
				s.logger.Warn("tick: alert dispatch logging failed", "error", dispatchErr)
			}
		}
	}
}

// fetchWithRetry classifies upstream errors into transient (retried with
// backoff up to MaxAttempts) and permanent (returned immediately).
func (s *Scheduler) fetchWithRetry(ctx context.Context, seqStart uint64) ([]feesample.Sample, error) {
	var samples []feesample.Sample
	err := retry.Do(ctx, s.cfg.MaxAttempts, s.cfg.BaseRetryDelay, func() error {
		var fetchErr error
		samples, fetchErr = s.fetch.FetchRecentTransactions(ctx, seqStart)
		return fetchErr
	})
	return samples, err
}

func (s *Scheduler) nextSeqUnsafe() uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return s.nextSeq
}

func (s *Scheduler) setNextSeq(v uint64) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if v > s.nextSeq {
		s.nextSeq = v
	}
}
