package certreq

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/certsync/internal/scoring"
)

type SQLStore struct{ DB *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{DB: db} }

func (s *SQLStore) Get(ctx context.Context, id string) (Request, error) {
	var r Request
	var batchID, rosterID sql.NullString
	var practical, written, total, thresh sql.NullFloat64
	var requiresBoth sql.NullBool
	var completion, lastSync sql.NullInt64
	var status string
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, email, course_id, batch_id, roster_id,
		       practical_score, written_score, total_score, pass_threshold, requires_both_scores,
		       calculated_status, completion_date, last_score_sync
		FROM certificate_requests WHERE id=$1`, id).
		Scan(&r.ID, &r.Email, &r.CourseID, &batchID, &rosterID,
			&practical, &written, &total, &thresh, &requiresBoth,
			&status, &completion, &lastSync)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	r.BatchID, r.RosterID = batchID.String, rosterID.String
	r.PracticalScore = nullFloat(practical)
	r.WrittenScore = nullFloat(written)
	r.TotalScore = nullFloat(total)
	r.PassThreshold = nullFloat(thresh)
	if requiresBoth.Valid {
		v := requiresBoth.Bool
		r.RequiresBoth = &v
	}
	r.CalculatedStatus = scoring.Status(status)
	r.CompletionDate = nullTime(completion)
	r.LastScoreSync = nullTime(lastSync)
	return r, nil
}

func (s *SQLStore) ApplySync(ctx context.Context, id string, u SyncUpdate) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE certificate_requests
		   SET practical_score=$1, written_score=$2, total_score=$3,
		       completion_date=$4, online_completion_date=$5, calculated_status=$6,
		       thinkific_course_id=$7, thinkific_enrollment_id=$8,
		       last_score_sync=$9, updated_at=$10
		 WHERE id=$11`,
		floatArg(u.PracticalScore), floatArg(u.WrittenScore), floatArg(u.TotalScore),
		timeArg(u.CompletionDate), timeArg(u.OnlineCompletionDate), string(u.CalculatedStatus),
		u.ThinkificCourseID, u.ThinkificEnrollmentID,
		u.LastScoreSync.Unix(), u.UpdatedAt.Unix(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListIDs(ctx context.Context, g Group) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM certificate_requests WHERE `+g.column()+`=$1 ORDER BY created_at, id`, g.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Insert seeds a request row. The sync pipeline never calls it; it backs the
// CLI's "request add" command and tests.
func (s *SQLStore) Insert(ctx context.Context, r Request) error {
	now := time.Now().Unix()
	status := r.CalculatedStatus
	if status == "" {
		status = scoring.StatusPending
	}
	var requiresBoth any
	if r.RequiresBoth != nil {
		requiresBoth = *r.RequiresBoth
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO certificate_requests
		  (id, email, course_id, batch_id, roster_id, pass_threshold, requires_both_scores, calculated_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.Email, r.CourseID, nullString(r.BatchID), nullString(r.RosterID),
		floatArg(r.PassThreshold), requiresBoth, string(status), now, now)
	return err
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func timeArg(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.Unix()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
