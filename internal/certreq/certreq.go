package certreq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/certsync/internal/scoring"
)

var ErrNotFound = errors.New("certificate request not found")

// Request is a student's pending certification outcome.
type Request struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	CourseID         string         `json:"course_id"`
	BatchID          string         `json:"batch_id,omitempty"`
	RosterID         string         `json:"roster_id,omitempty"`
	PracticalScore   *float64       `json:"practical_score,omitempty"`
	WrittenScore     *float64       `json:"written_score,omitempty"`
	TotalScore       *float64       `json:"total_score,omitempty"`
	PassThreshold    *float64       `json:"pass_threshold,omitempty"`
	RequiresBoth     *bool          `json:"requires_both_scores,omitempty"`
	CalculatedStatus scoring.Status `json:"calculated_status"`
	CompletionDate   *time.Time     `json:"completion_date,omitempty"`
	LastScoreSync    *time.Time     `json:"last_score_sync,omitempty"`
}

// SyncUpdate is the set of columns written back after a sync.
// Status is only ever the output of scoring.Resolve.
type SyncUpdate struct {
	PracticalScore        *float64
	WrittenScore          *float64
	TotalScore            *float64
	CompletionDate        *time.Time
	OnlineCompletionDate  *time.Time
	CalculatedStatus      scoring.Status
	ThinkificCourseID     string
	ThinkificEnrollmentID string
	LastScoreSync         time.Time
	UpdatedAt             time.Time
}

type GroupKind string

const (
	GroupBatch  GroupKind = "batch"
	GroupRoster GroupKind = "roster"
)

// Group names a batch or roster whose members are synced together.
type Group struct {
	Kind GroupKind
	ID   string
}

func (g Group) Validate() error {
	switch g.Kind {
	case GroupBatch, GroupRoster:
	default:
		return fmt.Errorf("unknown group kind %q", g.Kind)
	}
	if g.ID == "" {
		return errors.New("group id required")
	}
	return nil
}

func (g Group) column() string {
	if g.Kind == GroupRoster {
		return "roster_id"
	}
	return "batch_id"
}

// Store reads and updates certificate requests. It never creates or deletes them.
type Store interface {
	Get(ctx context.Context, id string) (Request, error)
	ApplySync(ctx context.Context, id string, u SyncUpdate) error
	ListIDs(ctx context.Context, g Group) ([]string, error)
}
