package certreq_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mind-engage/certsync/internal/certreq"
	"github.com/mind-engage/certsync/internal/scoring"
)

func TestSupabaseStore(t *testing.T) {
	var patched map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/certificate_requests", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "service-key" || r.Header.Get("Authorization") != "Bearer service-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			switch {
			case q.Get("id") == "eq.r1":
				_, _ = w.Write([]byte(`[{"id":"r1","email":"ada@example.com","course_id":"7","batch_id":"b1",
					"pass_threshold":70,"requires_both_scores":true,"calculated_status":null,
					"last_score_sync":"2025-03-02T09:00:00Z"}]`))
			case q.Get("batch_id") == "eq.b1":
				if q.Get("select") != "id" {
					t.Errorf("list select = %q", q.Get("select"))
				}
				_, _ = w.Write([]byte(`[{"id":"r1"},{"id":"r2"}]`))
			default:
				_, _ = w.Write([]byte(`[]`))
			}
		case http.MethodPatch:
			if q.Get("id") != "eq.r1" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			if err := json.NewDecoder(r.Body).Decode(&patched); err != nil {
				t.Errorf("decode patch: %v", err)
			}
			_, _ = w.Write([]byte(`[{"id":"r1"}]`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx := context.Background()
	st := certreq.NewSupabaseStore(ts.URL+"/", "service-key", 5*time.Second)

	r, err := st.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Email != "ada@example.com" || r.BatchID != "b1" || r.CalculatedStatus != scoring.StatusPending {
		t.Fatalf("request = %+v", r)
	}
	if r.PassThreshold == nil || *r.PassThreshold != 70 || r.RequiresBoth == nil || !*r.RequiresBoth {
		t.Fatalf("threshold/requires = %v/%v", r.PassThreshold, r.RequiresBoth)
	}
	if r.LastScoreSync == nil {
		t.Fatal("expected last_score_sync")
	}

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, certreq.ErrNotFound) {
		t.Fatalf("get missing err = %v", err)
	}

	now := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	err = st.ApplySync(ctx, "r1", certreq.SyncUpdate{
		PracticalScore:   f(82.5),
		CalculatedStatus: scoring.StatusFailed,
		LastScoreSync:    now,
		UpdatedAt:        now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if patched["calculated_status"] != "failed" || patched["practical_score"] != 82.5 {
		t.Fatalf("patch body = %v", patched)
	}
	if patched["written_score"] != nil || patched["last_score_sync"] != "2025-03-03T00:00:00Z" {
		t.Fatalf("patch body = %v", patched)
	}

	err = st.ApplySync(ctx, "missing", certreq.SyncUpdate{CalculatedStatus: scoring.StatusFailed, LastScoreSync: now, UpdatedAt: now})
	if !errors.Is(err, certreq.ErrNotFound) {
		t.Fatalf("apply missing err = %v", err)
	}

	ids, err := st.ListIDs(ctx, certreq.Group{Kind: certreq.GroupBatch, ID: "b1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "r1" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestSupabaseStore_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	st := certreq.NewSupabaseStore(ts.URL, "k", time.Second)
	if _, err := st.Get(context.Background(), "r1"); err == nil || errors.Is(err, certreq.ErrNotFound) {
		t.Fatalf("err = %v; want transport error", err)
	}
}
