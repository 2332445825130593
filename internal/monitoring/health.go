package monitoring

import (
	"context"
	"fmt"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Prober is satisfied by lms.Client.
type Prober interface {
	TestConnection(ctx context.Context) error
}

type Component struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

type Report struct {
	Status     Status      `json:"status"`
	Components []Component `json:"components"`
	CheckedAt  time.Time   `json:"checked_at"`
}

type HealthService struct {
	DB      Pinger          // optional
	LMS     Prober          // optional
	Metrics *MetricsService // optional
	Now     Clock
	Timeout time.Duration

	// Sync error rate at or above which the sync component degrades or fails.
	DegradedErrorRate  float64
	UnhealthyErrorRate float64
}

func NewHealthService(db Pinger, lms Prober, metrics *MetricsService) *HealthService {
	return &HealthService{
		DB: db, LMS: lms, Metrics: metrics,
		Now:                time.Now,
		Timeout:            5 * time.Second,
		DegradedErrorRate:  0.2,
		UnhealthyErrorRate: 0.5,
	}
}

// Check probes each dependency. A database failure is unhealthy; an LMS
// failure only degrades, since stored requests stay readable.
func (h *HealthService) Check(ctx context.Context) Report {
	r := Report{Status: StatusHealthy, CheckedAt: h.Now()}
	add := func(c Component) {
		r.Components = append(r.Components, c)
		r.Status = worse(r.Status, c.Status)
	}
	if h.DB != nil {
		add(h.probe(ctx, "database", StatusUnhealthy, h.DB.PingContext))
	}
	if h.LMS != nil {
		add(h.probe(ctx, "lms", StatusDegraded, h.LMS.TestConnection))
	}
	if h.Metrics != nil {
		if s, ok := h.Metrics.Latest(); ok {
			add(h.syncComponent(s))
		}
	}
	return r
}

func (h *HealthService) probe(ctx context.Context, name string, onFail Status, fn func(context.Context) error) Component {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	start := h.Now()
	err := fn(ctx)
	c := Component{Name: name, Status: StatusHealthy, Latency: h.Now().Sub(start)}
	if err != nil {
		c.Status = onFail
		c.Message = err.Error()
	}
	return c
}

func (h *HealthService) syncComponent(s Snapshot) Component {
	c := Component{Name: "score_sync", Status: StatusHealthy}
	rate, ok := s.Value(MetricSyncErrorRate)
	if !ok {
		c.Message = "no syncs in window"
		return c
	}
	c.Message = fmt.Sprintf("%d of %d syncs failed", s.SyncFailure, s.SyncTotal)
	switch {
	case rate >= h.UnhealthyErrorRate:
		c.Status = StatusUnhealthy
	case rate >= h.DegradedErrorRate:
		c.Status = StatusDegraded
	}
	return c
}
