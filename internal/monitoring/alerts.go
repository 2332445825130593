package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/certsync/internal/audit"
)

var ErrAlertNotFound = errors.New("alert not found")

type Operator string

const (
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
)

func (o Operator) holds(v, threshold float64) bool {
	switch o {
	case OpGT:
		return v > threshold
	case OpGTE:
		return v >= threshold
	case OpLT:
		return v < threshold
	case OpLTE:
		return v <= threshold
	}
	return false
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Rule struct {
	ID        string   `json:"id" yaml:"id" validate:"required"`
	Name      string   `json:"name" yaml:"name"`
	Metric    string   `json:"metric" yaml:"metric" validate:"required,oneof=sync_total sync_failures sync_error_rate minutes_since_last_sync sync_success_percent"`
	Operator  Operator `json:"operator" yaml:"operator" validate:"required,oneof=gt gte lt lte"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
	Severity  Severity `json:"severity" yaml:"severity" validate:"required,oneof=info warning critical"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
}

type Alert struct {
	ID             string     `json:"id"`
	RuleID         string     `json:"rule_id"`
	Name           string     `json:"name"`
	Severity       Severity   `json:"severity"`
	Metric         string     `json:"metric"`
	Value          float64    `json:"value"`
	Threshold      float64    `json:"threshold"`
	Message        string     `json:"message"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

func DefaultRules() []Rule {
	return []Rule{
		{ID: "sync-error-rate-high", Name: "Score sync error rate high", Metric: MetricSyncErrorRate,
			Operator: OpGT, Threshold: 0.2, Severity: SeverityWarning, Enabled: true},
		{ID: "sync-error-rate-critical", Name: "Score sync mostly failing", Metric: MetricSyncErrorRate,
			Operator: OpGTE, Threshold: 0.5, Severity: SeverityCritical, Enabled: true},
		{ID: "sync-stale", Name: "No score sync in 24h", Metric: MetricMinutesSinceSync,
			Operator: OpGT, Threshold: 24 * 60, Severity: SeverityInfo, Enabled: true},
	}
}

// AlertManager keeps one open alert per firing rule. An alert resolves when a
// later evaluation finds its rule no longer holds.
type AlertManager struct {
	audit    audit.Writer // optional
	log      *zap.Logger
	now      Clock
	validate *validator.Validate

	mu     sync.RWMutex
	rules  []Rule
	active map[string]*Alert // by rule id
}

func NewAlertManager(w audit.Writer, log *zap.Logger, now Clock, rules ...Rule) (*AlertManager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	m := &AlertManager{audit: w, log: log.Named("alerts"), now: now, validate: validator.New(), active: map[string]*Alert{}}
	for _, r := range rules {
		if err := m.AddRule(r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddRule adds r or replaces the rule with the same ID.
func (m *AlertManager) AddRule(r Rule) error {
	if err := m.validate.Struct(r); err != nil {
		return fmt.Errorf("alert rule %q: %w", r.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == r.ID {
			m.rules[i] = r
			return nil
		}
	}
	m.rules = append(m.rules, r)
	return nil
}

func (m *AlertManager) Rules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Rule(nil), m.rules...)
}

// Evaluate checks every enabled rule against s and returns the alerts it opened.
func (m *AlertManager) Evaluate(ctx context.Context, s Snapshot) []Alert {
	m.mu.Lock()
	var opened []Alert
	for _, r := range m.rules {
		v, ok := s.Value(r.Metric)
		firing := r.Enabled && ok && r.Operator.holds(v, r.Threshold)
		cur, open := m.active[r.ID]
		switch {
		case firing && open:
			cur.Value = v
		case firing:
			a := &Alert{
				ID:          uuid.NewString(),
				RuleID:      r.ID,
				Name:        r.Name,
				Severity:    r.Severity,
				Metric:      r.Metric,
				Value:       v,
				Threshold:   r.Threshold,
				Message:     fmt.Sprintf("%s: %s %.2f %s %.2f", r.Name, r.Metric, v, r.Operator, r.Threshold),
				TriggeredAt: m.now(),
			}
			m.active[r.ID] = a
			opened = append(opened, *a)
		case open:
			m.log.Info("alert resolved", zap.String("rule", r.ID), zap.String("alert", cur.ID))
			delete(m.active, r.ID)
		}
	}
	m.mu.Unlock()

	for _, a := range opened {
		m.log.Warn("alert triggered", zap.String("rule", a.RuleID), zap.String("severity", string(a.Severity)), zap.Float64("value", a.Value))
		if m.audit == nil {
			continue
		}
		err := m.audit.Append(ctx, audit.Entry{
			Action:     audit.ActionAlertTriggered,
			EntityType: "alert_rule",
			EntityID:   a.RuleID,
			Status:     audit.StatusInfo,
			Message:    a.Message,
			Metadata:   map[string]any{"alert_id": a.ID, "severity": string(a.Severity), "value": a.Value},
			CreatedAt:  a.TriggeredAt,
		})
		if err != nil {
			m.log.Warn("audit append failed", zap.Error(err))
		}
	}
	return opened
}

// Active lists open alerts, most severe first.
func (m *AlertManager) Active() []Alert {
	m.mu.RLock()
	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, *a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity); ri != rj {
			return ri > rj
		}
		return out[i].TriggeredAt.Before(out[j].TriggeredAt)
	})
	return out
}

func (m *AlertManager) Acknowledge(id string) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.active {
		if a.ID != id {
			continue
		}
		if !a.Acknowledged {
			now := m.now()
			a.Acknowledged = true
			a.AcknowledgedAt = &now
		}
		return *a, nil
	}
	return Alert{}, ErrAlertNotFound
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	}
	return 0
}
