package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ActionScoreSync      = "score_sync"
	ActionAlertTriggered = "alert_triggered"

	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusInfo    = "info"
)

type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Writer appends audit entries. Implementations must be safe for concurrent use.
type Writer interface {
	Append(ctx context.Context, e Entry) error
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// Append stores e, filling ID and CreatedAt when unset.
func (r *Repo) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = b
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, status, message, metadata, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.Action, e.EntityType, e.EntityID, e.Status, e.Message, string(meta), e.CreatedAt.Unix())
	return err
}

// Since returns entries created at or after t, newest first. An empty action
// matches every action.
func (r *Repo) Since(ctx context.Context, t time.Time, action string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, entity_type, entity_id, status, message, metadata, created_at
		   FROM audit_logs
		  WHERE created_at >= $1 AND ($2 = '' OR action = $2)
		  ORDER BY created_at DESC, id
		  LIMIT $3`, t.Unix(), action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var meta string
		var created int64
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.Status, &e.Message, &meta, &created); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats summarises one action over a window.
type Stats struct {
	Total    int
	ByStatus map[string]int
	Last     *time.Time
}

func (r *Repo) Stats(ctx context.Context, since time.Time, action string) (Stats, error) {
	s := Stats{ByStatus: map[string]int{}}
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*), MAX(created_at)
		   FROM audit_logs
		  WHERE created_at >= $1 AND action = $2
		  GROUP BY status`, since.Unix(), action)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	var last int64
	for rows.Next() {
		var status string
		var n int
		var maxAt int64
		if err := rows.Scan(&status, &n, &maxAt); err != nil {
			return s, err
		}
		s.ByStatus[status] = n
		s.Total += n
		if maxAt > last {
			last = maxAt
		}
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	if last > 0 {
		t := time.Unix(last, 0).UTC()
		s.Last = &t
	}
	return s, nil
}

// LastAt is the newest entry time for action across the whole log, or nil
// when there is none.
func (r *Repo) LastAt(ctx context.Context, action string) (*time.Time, error) {
	var last sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM audit_logs WHERE action = $1`, action).Scan(&last)
	if err != nil || !last.Valid {
		return nil, err
	}
	t := time.Unix(last.Int64, 0).UTC()
	return &t, nil
}
