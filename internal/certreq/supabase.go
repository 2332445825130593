package certreq

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mind-engage/certsync/internal/scoring"
)

const table = "certificate_requests"

// SupabaseStore reads and patches certificate requests through PostgREST.
type SupabaseStore struct {
	rc *resty.Client
}

func NewSupabaseStore(baseURL, key string, timeout time.Duration) *SupabaseStore {
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")+"/rest/v1").
		SetHeader("apikey", key).
		SetAuthToken(key).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}
	return &SupabaseStore{rc: rc}
}

type supabaseRow struct {
	ID               string     `json:"id"`
	Email            *string    `json:"email"`
	CourseID         *string    `json:"course_id"`
	BatchID          *string    `json:"batch_id"`
	RosterID         *string    `json:"roster_id"`
	PracticalScore   *float64   `json:"practical_score"`
	WrittenScore     *float64   `json:"written_score"`
	TotalScore       *float64   `json:"total_score"`
	PassThreshold    *float64   `json:"pass_threshold"`
	RequiresBoth     *bool      `json:"requires_both_scores"`
	CalculatedStatus *string    `json:"calculated_status"`
	CompletionDate   *time.Time `json:"completion_date"`
	LastScoreSync    *time.Time `json:"last_score_sync"`
}

func (s *SupabaseStore) Get(ctx context.Context, id string) (Request, error) {
	var rows []supabaseRow
	res, err := s.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"id":     "eq." + id,
			"select": "*",
			"limit":  "1",
		}).
		SetResult(&rows).
		Get("/" + table)
	if err != nil {
		return Request{}, err
	}
	if !res.IsSuccess() {
		return Request{}, fmt.Errorf("supabase get %s: %s", id, res.Status())
	}
	if len(rows) == 0 {
		return Request{}, ErrNotFound
	}
	row := rows[0]
	r := Request{
		ID:               row.ID,
		Email:            deref(row.Email),
		CourseID:         deref(row.CourseID),
		BatchID:          deref(row.BatchID),
		RosterID:         deref(row.RosterID),
		PracticalScore:   row.PracticalScore,
		WrittenScore:     row.WrittenScore,
		TotalScore:       row.TotalScore,
		PassThreshold:    row.PassThreshold,
		RequiresBoth:     row.RequiresBoth,
		CalculatedStatus: scoring.StatusPending,
		CompletionDate:   row.CompletionDate,
		LastScoreSync:    row.LastScoreSync,
	}
	if row.CalculatedStatus != nil && *row.CalculatedStatus != "" {
		r.CalculatedStatus = scoring.Status(*row.CalculatedStatus)
	}
	return r, nil
}

func (s *SupabaseStore) ApplySync(ctx context.Context, id string, u SyncUpdate) error {
	body := map[string]any{
		"practical_score":         u.PracticalScore,
		"written_score":           u.WrittenScore,
		"total_score":             u.TotalScore,
		"completion_date":         isoTime(u.CompletionDate),
		"online_completion_date":  isoTime(u.OnlineCompletionDate),
		"calculated_status":       string(u.CalculatedStatus),
		"thinkific_course_id":     u.ThinkificCourseID,
		"thinkific_enrollment_id": u.ThinkificEnrollmentID,
		"last_score_sync":         u.LastScoreSync.UTC().Format(time.RFC3339),
		"updated_at":              u.UpdatedAt.UTC().Format(time.RFC3339),
	}
	var rows []struct {
		ID string `json:"id"`
	}
	res, err := s.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=representation").
		SetQueryParams(map[string]string{"id": "eq." + id, "select": "id"}).
		SetBody(body).
		SetResult(&rows).
		Patch("/" + table)
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return fmt.Errorf("supabase update %s: %s", id, res.Status())
	}
	if res.StatusCode() == http.StatusOK && len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SupabaseStore) ListIDs(ctx context.Context, g Group) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	var rows []struct {
		ID string `json:"id"`
	}
	res, err := s.rc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			g.column(): "eq." + g.ID,
			"select":   "id",
			"order":    "created_at.asc",
		}).
		SetResult(&rows).
		Get("/" + table)
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("supabase list %s %s: %s", g.Kind, g.ID, res.Status())
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isoTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
