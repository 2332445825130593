package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/mind-engage/certsync/internal/audit"
)

type Clock func() time.Time

// Metric names understood by Snapshot.Value and alert rules.
const (
	MetricSyncTotal          = "sync_total"
	MetricSyncFailures       = "sync_failures"
	MetricSyncErrorRate      = "sync_error_rate"
	MetricMinutesSinceSync   = "minutes_since_last_sync"
	MetricSyncSuccessPercent = "sync_success_percent"
)

// StatsSource is satisfied by *audit.Repo.
type StatsSource interface {
	Stats(ctx context.Context, since time.Time, action string) (audit.Stats, error)
	LastAt(ctx context.Context, action string) (*time.Time, error)
}

type Snapshot struct {
	Window      time.Duration `json:"window"`
	SyncTotal   int           `json:"sync_total"`
	SyncSuccess int           `json:"sync_success"`
	SyncFailure int           `json:"sync_failure"`
	ErrorRate   float64       `json:"error_rate"`             // 0..1
	LastSyncAt  *time.Time    `json:"last_sync_at,omitempty"` // not bounded by Window
	CollectedAt time.Time     `json:"collected_at"`
}

// Value returns a named metric. ok is false when the metric is unknown or has
// no meaningful value in this window.
func (s Snapshot) Value(metric string) (v float64, ok bool) {
	switch metric {
	case MetricSyncTotal:
		return float64(s.SyncTotal), true
	case MetricSyncFailures:
		return float64(s.SyncFailure), true
	case MetricSyncErrorRate:
		if s.SyncTotal == 0 {
			return 0, false
		}
		return s.ErrorRate, true
	case MetricSyncSuccessPercent:
		if s.SyncTotal == 0 {
			return 0, false
		}
		return float64(s.SyncSuccess) / float64(s.SyncTotal) * 100, true
	case MetricMinutesSinceSync:
		if s.LastSyncAt == nil {
			return 0, false
		}
		return s.CollectedAt.Sub(*s.LastSyncAt).Minutes(), true
	}
	return 0, false
}

// MetricsService turns the score-sync audit trail into rolling-window snapshots.
type MetricsService struct {
	src    StatsSource
	window time.Duration
	now    Clock

	mu     sync.RWMutex
	latest *Snapshot
}

func NewMetricsService(src StatsSource, window time.Duration, now Clock) *MetricsService {
	if window <= 0 {
		window = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &MetricsService{src: src, window: window, now: now}
}

func (m *MetricsService) Collect(ctx context.Context) (Snapshot, error) {
	now := m.now()
	st, err := m.src.Stats(ctx, now.Add(-m.window), audit.ActionScoreSync)
	if err != nil {
		return Snapshot{}, err
	}
	last, err := m.src.LastAt(ctx, audit.ActionScoreSync)
	if err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{
		Window:      m.window,
		SyncTotal:   st.Total,
		SyncSuccess: st.ByStatus[audit.StatusSuccess],
		SyncFailure: st.ByStatus[audit.StatusFailure],
		LastSyncAt:  last,
		CollectedAt: now,
	}
	if s.SyncTotal > 0 {
		s.ErrorRate = float64(s.SyncFailure) / float64(s.SyncTotal)
	}
	m.mu.Lock()
	m.latest = &s
	m.mu.Unlock()
	return s, nil
}

// Latest returns the last collected snapshot, if any.
func (m *MetricsService) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Snapshot{}, false
	}
	return *m.latest, true
}
