package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
	"github.com/stellar-fee-tracker/insights-service/internal/idgen"
)

// MemoryStore is an in-memory Repository for tests and local development.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	samples     []feesample.Sample
	snapshots   []FeeSnapshot
	configs     []AlertConfig
	events      []AlertEvent
	nextEventID int64
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertSamples(_ context.Context, samples []feesample.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, samples...)
	return nil
}

func (m *MemoryStore) SamplesSince(_ context.Context, t time.Time) ([]feesample.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]feesample.Sample, 0, len(m.samples))
	for _, s := range m.samples {
		if !s.Timestamp.Before(t) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func (m *MemoryStore) PruneBefore(_ context.Context, t time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []feesample.Sample
	var removed int64
	for _, s := range m.samples {
		if s.Timestamp.Before(t) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return removed, nil
}

func (m *MemoryStore) InsertSnapshot(_ context.Context, snap FeeSnapshot) error {
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *MemoryStore) CreateAlertConfig(_ context.Context, webhookURL string, threshold ConfigThreshold) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := idgen.WithPrefix("alertcfg_")
	now := time.Now().UTC()
	m.configs = append(m.configs, AlertConfig{
		ID:         id,
		WebhookURL: webhookURL,
		Threshold:  threshold,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return id, nil
}

func (m *MemoryStore) ListAlertConfigs(_ context.Context) ([]AlertConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AlertConfig, len(m.configs))
	copy(out, m.configs)
	return out, nil
}

func (m *MemoryStore) UpdateAlertConfig(_ context.Context, id string, threshold *ConfigThreshold, enabled *bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.configs {
		if m.configs[i].ID != id {
			continue
		}
		if threshold != nil {
			m.configs[i].Threshold = *threshold
		}
		if enabled != nil {
			m.configs[i].Enabled = *enabled
		}
		m.configs[i].UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) SoftDeleteAlertConfig(_ context.Context, id string) (bool, error) {
	disabled := false
	return m.UpdateAlertConfig(context.Background(), id, nil, &disabled)
}

func (m *MemoryStore) LogAlertEvent(_ context.Context, event AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	event.ID = m.nextEventID
	if event.TriggeredAt.IsZero() {
		event.TriggeredAt = time.Now().UTC()
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStore) QueryAlertEvents(_ context.Context, limit int, filter AlertEventFilter) ([]AlertEvent, error) {
	limit = ClampHistoryLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]AlertEvent, 0, len(m.events))
	for _, e := range m.events {
		if !matchesFilter(e, filter) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].TriggeredAt.After(matched[j].TriggeredAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) CountAlertEvents(_ context.Context, filter AlertEventFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, e := range m.events {
		if matchesFilter(e, filter) {
			count++
		}
	}
	return count, nil
}

func matchesFilter(e AlertEvent, filter AlertEventFilter) bool {
	if filter.Severity != "" && e.Severity != filter.Severity {
		return false
	}
	if filter.Delivered != nil && e.Delivered != *filter.Delivered {
		return false
	}
	return true
}
