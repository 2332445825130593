package certreq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/certsync/internal/certreq"
	"github.com/mind-engage/certsync/internal/db"
	"github.com/mind-engage/certsync/internal/scoring"
)

func openStore(t *testing.T, name string) *certreq.SQLStore {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return certreq.NewSQLStore(conn)
}

func f(v float64) *float64 { return &v }

func TestSQLStore_GetAndApplySync(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "certreq_get")

	both := false
	if err := st.Insert(ctx, certreq.Request{
		ID: "r1", Email: "ada@example.com", CourseID: "7", BatchID: "b1",
		PassThreshold: f(75), RequiresBoth: &both,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r, err := st.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Email != "ada@example.com" || r.CourseID != "7" || r.BatchID != "b1" || r.RosterID != "" {
		t.Fatalf("request = %+v", r)
	}
	if r.CalculatedStatus != scoring.StatusPending {
		t.Fatalf("status = %q; want pending", r.CalculatedStatus)
	}
	if r.PassThreshold == nil || *r.PassThreshold != 75 {
		t.Fatalf("threshold = %v", r.PassThreshold)
	}
	if r.RequiresBoth == nil || *r.RequiresBoth {
		t.Fatalf("requires both = %v", r.RequiresBoth)
	}
	if r.PracticalScore != nil || r.LastScoreSync != nil {
		t.Fatalf("expected unsynced row, got %+v", r)
	}

	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	done := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	err = st.ApplySync(ctx, "r1", certreq.SyncUpdate{
		PracticalScore:        f(90),
		WrittenScore:          nil,
		TotalScore:            f(90),
		CompletionDate:        &done,
		OnlineCompletionDate:  &done,
		CalculatedStatus:      scoring.StatusPassed,
		ThinkificCourseID:     "7",
		ThinkificEnrollmentID: "900",
		LastScoreSync:         now,
		UpdatedAt:             now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	r, err = st.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.PracticalScore == nil || *r.PracticalScore != 90 || r.WrittenScore != nil {
		t.Fatalf("scores = %v / %v", r.PracticalScore, r.WrittenScore)
	}
	if r.CalculatedStatus != scoring.StatusPassed {
		t.Fatalf("status = %q", r.CalculatedStatus)
	}
	if r.CompletionDate == nil || !r.CompletionDate.Equal(done) {
		t.Fatalf("completion = %v", r.CompletionDate)
	}
	if r.LastScoreSync == nil || !r.LastScoreSync.Equal(now) {
		t.Fatalf("last sync = %v", r.LastScoreSync)
	}
}

func TestSQLStore_NotFound(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "certreq_missing")

	if _, err := st.Get(ctx, "nope"); !errors.Is(err, certreq.ErrNotFound) {
		t.Fatalf("get err = %v", err)
	}
	err := st.ApplySync(ctx, "nope", certreq.SyncUpdate{CalculatedStatus: scoring.StatusFailed, LastScoreSync: time.Now(), UpdatedAt: time.Now()})
	if !errors.Is(err, certreq.ErrNotFound) {
		t.Fatalf("apply err = %v", err)
	}
}

func TestSQLStore_ListIDs(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "certreq_list")

	for _, r := range []certreq.Request{
		{ID: "a", Email: "a@example.com", CourseID: "7", BatchID: "b1"},
		{ID: "b", Email: "b@example.com", CourseID: "7", BatchID: "b1", RosterID: "r9"},
		{ID: "c", Email: "c@example.com", CourseID: "7", BatchID: "b2", RosterID: "r9"},
	} {
		if err := st.Insert(ctx, r); err != nil {
			t.Fatalf("insert %s: %v", r.ID, err)
		}
	}

	ids, err := st.ListIDs(ctx, certreq.Group{Kind: certreq.GroupBatch, ID: "b1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("batch ids = %v", ids)
	}

	ids, err = st.ListIDs(ctx, certreq.Group{Kind: certreq.GroupRoster, ID: "r9"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("roster ids = %v", ids)
	}

	ids, err = st.ListIDs(ctx, certreq.Group{Kind: certreq.GroupBatch, ID: "empty"})
	if err != nil || len(ids) != 0 {
		t.Fatalf("empty batch = %v, %v", ids, err)
	}

	if _, err := st.ListIDs(ctx, certreq.Group{Kind: "cohort", ID: "x"}); err == nil {
		t.Fatal("expected error for unknown group kind")
	}
}
