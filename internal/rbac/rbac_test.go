package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker_Has(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"admin", PermMonitoringManage, true},
		{"operator", PermSyncRun, true},
		{"operator", PermSyncBatch, true},
		{"operator", PermMonitoringManage, false},
		{"viewer", PermMonitoringView, true},
		{"viewer", PermSyncRun, false},
		{"nobody", PermMonitoringView, false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v; want %v", tc.role, tc.perm, got, tc.want)
		}
	}
	if !c.Any("viewer", PermSyncRun, PermMonitoringView) {
		t.Error("Any: viewer should match monitoring:view")
	}
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require(PermSyncRun)(ok)

	for role, want := range map[string]int{"": 403, "viewer": 403, "operator": 204, "admin": 204} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: status %d; want %d", role, rec.Code, want)
		}
	}
}
