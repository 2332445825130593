package lms

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidInput is returned when a lookup is attempted without an email or course id.
	ErrInvalidInput = errors.New("lms: email and course id are required")
	// ErrNotFound is returned for single-resource lookups the LMS does not know.
	ErrNotFound = errors.New("lms: not found")
)

type AssessmentType string

const (
	AssessmentQuiz       AssessmentType = "quiz"
	AssessmentAssignment AssessmentType = "assignment"
	AssessmentExam       AssessmentType = "exam"
)

type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentExpired   EnrollmentStatus = "expired"
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

type Enrollment struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"user_id"`
	CourseID            string           `json:"course_id"`
	PercentageCompleted float64          `json:"percentage_completed"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
	Status              EnrollmentStatus `json:"status"`
}

type Assessment struct {
	ID               string         `json:"id"`
	CourseID         string         `json:"course_id"`
	Name             string         `json:"name"`
	Type             AssessmentType `json:"type"`
	MaxScore         float64        `json:"max_score"`
	PassingScore     float64        `json:"passing_score"`
	WeightPercentage *float64       `json:"weight_percentage,omitempty"`
}

type AssessmentResult struct {
	ID            string    `json:"id"`
	AssessmentID  string    `json:"assessment_id"`
	UserID        string    `json:"user_id"`
	Score         float64   `json:"score"`
	Percentage    float64   `json:"percentage"`
	Passed        bool      `json:"passed"`
	CompletedAt   time.Time `json:"completed_at"`
	AttemptNumber int       `json:"attempt_number"`
}

// StudentData is the consolidated snapshot for one (email, course) pair.
// Enrollment is nil when the student is unknown or not enrolled.
type StudentData struct {
	User              *User              `json:"user,omitempty"`
	Enrollment        *Enrollment        `json:"enrollment,omitempty"`
	Course            *Course            `json:"course,omitempty"`
	Assessments       []Assessment       `json:"assessments"`
	AssessmentResults []AssessmentResult `json:"assessment_results"`
	OverallScore      *float64           `json:"overall_score,omitempty"`
}

type EnrollmentQuery struct {
	UserID   string
	CourseID string
	Page     int
	Limit    int
}

type ResultQuery struct {
	CourseID     string
	AssessmentID string
}

// Client is the read-only LMS surface consumed by the sync pipeline.
type Client interface {
	GetStudentCertificateData(ctx context.Context, email, courseID string) (StudentData, error)
	GetEnrollments(ctx context.Context, q EnrollmentQuery) ([]Enrollment, error)
	GetUserAssessmentResults(ctx context.Context, userID string, q ResultQuery) ([]AssessmentResult, error)
	GetCourseAssessments(ctx context.Context, courseID string) ([]Assessment, error)
	TestConnection(ctx context.Context) error
}

// LatestAttempts keeps one result per assessment: the highest attempt number,
// then the latest completion time. Earlier entries win exact ties.
func LatestAttempts(results []AssessmentResult) map[string]AssessmentResult {
	out := make(map[string]AssessmentResult, len(results))
	for _, r := range results {
		cur, ok := out[r.AssessmentID]
		if !ok ||
			r.AttemptNumber > cur.AttemptNumber ||
			(r.AttemptNumber == cur.AttemptNumber && r.CompletedAt.After(cur.CompletedAt)) {
			out[r.AssessmentID] = r
		}
	}
	return out
}
