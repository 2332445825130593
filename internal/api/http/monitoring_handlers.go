package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/certsync/internal/audit"
	"github.com/mind-engage/certsync/internal/monitoring"
)

// GET /monitoring/health
func HealthHandler(h *monitoring.HealthService) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		rep := h.Check(r.Context())
		status := nethttp.StatusOK
		if rep.Status == monitoring.StatusUnhealthy {
			status = nethttp.StatusServiceUnavailable
		}
		respondJSON(w, status, rep)
	}
}

// GET /monitoring/metrics  (?refresh=1 forces a collection)
func MetricsHandler(m *monitoring.MetricsService) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		s, ok := m.Latest()
		if !ok || r.URL.Query().Get("refresh") == "1" {
			var err error
			if s, err = m.Collect(r.Context()); err != nil {
				nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
				return
			}
		}
		respondJSON(w, nethttp.StatusOK, s)
	}
}

// GET /monitoring/alerts
func AlertsHandler(a *monitoring.AlertManager) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		respondJSON(w, nethttp.StatusOK, map[string]any{
			"active": a.Active(),
			"rules":  a.Rules(),
		})
	}
}

// POST /monitoring/alerts/{id}/ack
func AckAlertHandler(a *monitoring.AlertManager) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		alert, err := a.Acknowledge(chi.URLParam(r, "id"))
		if errors.Is(err, monitoring.ErrAlertNotFound) {
			nethttp.Error(w, err.Error(), nethttp.StatusNotFound)
			return
		}
		if err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
			return
		}
		respondJSON(w, nethttp.StatusOK, alert)
	}
}

// POST /monitoring/rules
func AddRuleHandler(a *monitoring.AlertManager) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var rule monitoring.Rule
		if err := decodeBody(r, &rule); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		if err := a.AddRule(rule); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		respondJSON(w, nethttp.StatusCreated, rule)
	}
}

// AuditLister is satisfied by *audit.Repo.
type AuditLister interface {
	Since(ctx context.Context, t time.Time, action string, limit int) ([]audit.Entry, error)
}

// GET /monitoring/audit?action=score_sync&since=24h&limit=100
func AuditHandler(l AuditLister, now func() time.Time) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q := r.URL.Query()
		window := 24 * time.Hour
		if s := q.Get("since"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				nethttp.Error(w, "bad since", nethttp.StatusBadRequest)
				return
			}
			window = d
		}
		limit := 100
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 1000 {
				nethttp.Error(w, "bad limit", nethttp.StatusBadRequest)
				return
			}
			limit = n
		}
		entries, err := l.Since(r.Context(), now().Add(-window), q.Get("action"), limit)
		if err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []audit.Entry{}
		}
		respondJSON(w, nethttp.StatusOK, map[string]any{"items": entries})
	}
}

// GET /lms/ping
func LMSPingHandler(p monitoring.Prober) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := p.TestConnection(r.Context()); err != nil {
			respondJSON(w, nethttp.StatusBadGateway, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		respondJSON(w, nethttp.StatusOK, map[string]any{"ok": true})
	}
}

// GET /readyz
func ReadyHandler(p monitoring.Pinger) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if p != nil {
			if err := p.PingContext(r.Context()); err != nil {
				nethttp.Error(w, "not ready", nethttp.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(nethttp.StatusOK)
	}
}
