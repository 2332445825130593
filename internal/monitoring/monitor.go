package monitoring

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Monitor periodically collects metrics and evaluates alert rules.
type Monitor struct {
	metrics *MetricsService
	alerts  *AlertManager
	log     *zap.Logger
	c       *cron.Cron
}

// NewMonitor schedules a collection run on spec (standard cron or a
// descriptor such as "@every 1m"). Nothing runs until Start.
func NewMonitor(spec string, metrics *MetricsService, alerts *AlertManager, log *zap.Logger) (*Monitor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{metrics: metrics, alerts: alerts, log: log.Named("monitor"), c: cron.New()}
	if _, err := m.c.AddFunc(spec, func() {
		if err := m.RunOnce(context.Background()); err != nil {
			m.log.Error("monitoring run failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("monitoring schedule %q: %w", spec, err)
	}
	return m, nil
}

// RunOnce collects a snapshot and evaluates alerts against it.
func (m *Monitor) RunOnce(ctx context.Context) error {
	s, err := m.metrics.Collect(ctx)
	if err != nil {
		return err
	}
	opened := m.alerts.Evaluate(ctx, s)
	m.log.Debug("monitoring run",
		zap.Int("sync_total", s.SyncTotal),
		zap.Float64("error_rate", s.ErrorRate),
		zap.Int("alerts_opened", len(opened)))
	return nil
}

func (m *Monitor) Start() {
	m.c.Start()
	m.log.Info("monitor started")
}

// Stop halts scheduling. The returned context is done once any running job
// has finished.
func (m *Monitor) Stop() context.Context {
	ctx := m.c.Stop()
	m.log.Info("monitor stopped")
	return ctx
}
