package http

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	nethttp "net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/certsync/internal/audit"
	"github.com/mind-engage/certsync/internal/certreq"
	"github.com/mind-engage/certsync/internal/monitoring"
	"github.com/mind-engage/certsync/internal/scoresync"
	"github.com/mind-engage/certsync/internal/scoring"
)

type fakeSyncer struct {
	lastID     string
	lastCourse string
	lastIDs    []string
	lastGroup  certreq.Group
	mapping    *scoring.MappingConfig
}

func (f *fakeSyncer) SyncRequest(_ context.Context, id, courseID string, m *scoring.MappingConfig) scoresync.SyncResult {
	f.lastID, f.lastCourse, f.mapping = id, courseID, m
	if id == "missing" {
		return scoresync.SyncResult{CertificateRequestID: id, Error: "certificate request not found"}
	}
	return scoresync.SyncResult{CertificateRequestID: id, Email: "ada@example.com", Success: true,
		SyncedData: &scoresync.SyncedData{CalculatedStatus: scoring.StatusPassed}}
}

func (f *fakeSyncer) SyncBatch(_ context.Context, ids []string, courseID string, m *scoring.MappingConfig, _ scoresync.ProgressFunc) scoresync.BatchResult {
	f.lastIDs, f.lastCourse = ids, courseID
	return scoresync.BatchResult{TotalProcessed: len(ids), Successful: len(ids), Results: []scoresync.SyncResult{}, Errors: []string{}}
}

func (f *fakeSyncer) SyncGroup(_ context.Context, g certreq.Group, courseID string, m *scoring.MappingConfig, _ scoresync.ProgressFunc) scoresync.BatchResult {
	f.lastGroup = g
	return scoresync.BatchResult{Results: []scoresync.SyncResult{}, Errors: []string{"No certificate requests found for this " + string(g.Kind)}}
}

func syncRouter(s Syncer) nethttp.Handler {
	r := chi.NewRouter()
	r.Post("/certificate-requests/{id}/sync", SyncRequestHandler(s))
	r.Post("/sync/batch", SyncBatchHandler(s))
	r.Post("/batches/{id}/sync", SyncGroupHandler(s, certreq.GroupBatch))
	r.Post("/rosters/{id}/sync", SyncGroupHandler(s, certreq.GroupRoster))
	return r
}

func do(h nethttp.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestSyncRequestHandler(t *testing.T) {
	f := &fakeSyncer{}
	h := syncRouter(f)

	rec := do(h, "POST", "/certificate-requests/c1/sync",
		`{"course_id":"7","mapping":{"combined_score_method":"highest","include_all_quizzes":true}}`)
	if rec.Code != 200 {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res scoresync.SyncResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.SyncedData.CalculatedStatus != scoring.StatusPassed {
		t.Fatalf("result = %+v", res)
	}
	if f.lastID != "c1" || f.lastCourse != "7" || f.mapping == nil || f.mapping.CombinedScoreMethod != scoring.MethodHighest {
		t.Fatalf("syncer saw id=%q course=%q mapping=%+v", f.lastID, f.lastCourse, f.mapping)
	}

	// empty body is fine: stored course + default mapping
	if rec := do(h, "POST", "/certificate-requests/c2/sync", ""); rec.Code != 200 || f.mapping != nil {
		t.Fatalf("empty body: status %d mapping %+v", rec.Code, f.mapping)
	}

	rec = do(h, "POST", "/certificate-requests/missing/sync", `{}`)
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("failed sync: %d %s", rec.Code, rec.Body.String())
	}

	bad := []string{
		`{"mapping":{"combined_score_method":"median"}}`,
		`{"course":"7"}`,
		`{`,
	}
	for _, b := range bad {
		if rec := do(h, "POST", "/certificate-requests/c1/sync", b); rec.Code != 400 {
			t.Errorf("%s: status %d; want 400", b, rec.Code)
		}
	}
}

func TestSyncBatchHandler(t *testing.T) {
	f := &fakeSyncer{}
	h := syncRouter(f)

	rec := do(h, "POST", "/sync/batch", `{"ids":["a","b","c"],"course_id":"7"}`)
	if rec.Code != 200 {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res scoresync.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.TotalProcessed != 3 || len(f.lastIDs) != 3 {
		t.Fatalf("result = %+v", res)
	}

	for _, b := range []string{`{}`, `{"ids":[]}`, `{"ids":[""]}`} {
		if rec := do(h, "POST", "/sync/batch", b); rec.Code != 400 {
			t.Errorf("%s: status %d; want 400", b, rec.Code)
		}
	}
}

func TestSyncGroupHandler(t *testing.T) {
	f := &fakeSyncer{}
	h := syncRouter(f)

	rec := do(h, "POST", "/rosters/r9/sync", "")
	if rec.Code != 200 || f.lastGroup != (certreq.Group{Kind: certreq.GroupRoster, ID: "r9"}) {
		t.Fatalf("status %d group %+v", rec.Code, f.lastGroup)
	}
	if !strings.Contains(rec.Body.String(), "No certificate requests found for this roster") {
		t.Fatalf("body = %s", rec.Body.String())
	}
	do(h, "POST", "/batches/b1/sync", "")
	if f.lastGroup.Kind != certreq.GroupBatch || f.lastGroup.ID != "b1" {
		t.Fatalf("group = %+v", f.lastGroup)
	}
}

type stubStats struct{ st audit.Stats }

func (s stubStats) Stats(context.Context, time.Time, string) (audit.Stats, error) { return s.st, nil }
func (s stubStats) LastAt(context.Context, string) (*time.Time, error)            { return s.st.Last, nil }

type stubProbe struct{ err error }

func (p stubProbe) TestConnection(context.Context) error { return p.err }
func (p stubProbe) PingContext(context.Context) error    { return p.err }

func TestMonitoringHandlers(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	metrics := monitoring.NewMetricsService(stubStats{st: audit.Stats{Total: 2, ByStatus: map[string]int{"failure": 2}}}, time.Hour, now)
	alerts, err := monitoring.NewAlertManager(nil, nil, now, monitoring.DefaultRules()...)
	if err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Get("/monitoring/health", HealthHandler(monitoring.NewHealthService(stubProbe{}, stubProbe{}, metrics)))
	r.Get("/monitoring/metrics", MetricsHandler(metrics))
	r.Get("/monitoring/alerts", AlertsHandler(alerts))
	r.Post("/monitoring/alerts/{id}/ack", AckAlertHandler(alerts))
	r.Post("/monitoring/rules", AddRuleHandler(alerts))
	r.Get("/lms/ping", LMSPingHandler(stubProbe{err: errors.New("401 Unauthorized")}))
	r.Get("/readyz", ReadyHandler(stubProbe{}))

	rec := do(r, "GET", "/monitoring/metrics", "")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"sync_failure":2`) {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body.String())
	}

	// metrics now show a 100% failure rate
	if rec := do(r, "GET", "/monitoring/health", ""); rec.Code != 503 {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}

	s, _ := metrics.Latest()
	opened := alerts.Evaluate(context.Background(), s)
	if len(opened) == 0 {
		t.Fatal("expected alerts")
	}
	rec = do(r, "GET", "/monitoring/alerts", "")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), opened[0].ID) {
		t.Fatalf("alerts: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, "POST", "/monitoring/alerts/"+opened[0].ID+"/ack", ""); rec.Code != 200 {
		t.Fatalf("ack: %d", rec.Code)
	}
	if rec := do(r, "POST", "/monitoring/alerts/nope/ack", ""); rec.Code != 404 {
		t.Fatalf("ack missing: %d", rec.Code)
	}

	rule := `{"id":"lots","metric":"sync_total","operator":"gt","threshold":100,"severity":"info","enabled":true}`
	if rec := do(r, "POST", "/monitoring/rules", rule); rec.Code != 201 {
		t.Fatalf("add rule: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, "POST", "/monitoring/rules", `{"id":"x","metric":"cpu","operator":"gt","severity":"info"}`); rec.Code != 400 {
		t.Fatalf("bad rule: %d", rec.Code)
	}

	if rec := do(r, "GET", "/lms/ping", ""); rec.Code != 502 {
		t.Fatalf("ping: %d", rec.Code)
	}
	if rec := do(r, "GET", "/readyz", ""); rec.Code != 200 {
		t.Fatalf("readyz: %d", rec.Code)
	}
}

type stubAudit struct {
	since  time.Time
	action string
	limit  int
}

func (s *stubAudit) Since(_ context.Context, t time.Time, action string, limit int) ([]audit.Entry, error) {
	s.since, s.action, s.limit = t, action, limit
	if action == "broken" {
		return nil, errors.New("db gone")
	}
	return []audit.Entry{{ID: "e1", Action: action, EntityID: "req-1", Status: audit.StatusFailure}}, nil
}

func TestAuditHandler(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &stubAudit{}
	r := chi.NewRouter()
	r.Get("/monitoring/audit", AuditHandler(st, func() time.Time { return now }))

	rec := do(r, "GET", "/monitoring/audit?action=score_sync&since=2h&limit=5", "")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"entity_id":"req-1"`) {
		t.Fatalf("audit: %d %s", rec.Code, rec.Body.String())
	}
	if !st.since.Equal(now.Add(-2*time.Hour)) || st.action != "score_sync" || st.limit != 5 {
		t.Fatalf("query = %+v", st)
	}

	if rec := do(r, "GET", "/monitoring/audit", ""); rec.Code != 200 || !st.since.Equal(now.Add(-24*time.Hour)) || st.limit != 100 {
		t.Fatalf("defaults: %d %+v", rec.Code, st)
	}
	for _, q := range []string{"?since=soon", "?since=-1h", "?limit=0", "?limit=5000"} {
		if rec := do(r, "GET", "/monitoring/audit"+q, ""); rec.Code != 400 {
			t.Errorf("%s: code = %d", q, rec.Code)
		}
	}
	if rec := do(r, "GET", "/monitoring/audit?action=broken", ""); rec.Code != 500 {
		t.Fatalf("store error: %d", rec.Code)
	}
}
