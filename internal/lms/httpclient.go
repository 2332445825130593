package lms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

type Config struct {
	BaseURL   string
	APIKey    string
	Subdomain string

	// OAuth2 client credentials; used instead of the API key headers when TokenURL is set.
	TokenURL     string
	ClientID     string
	ClientSecret string

	Timeout time.Duration
}

// HTTPClient talks to the Thinkific public API (or an edge function that
// proxies it with the same paths).
type HTTPClient struct {
	rc       *resty.Client
	validate *validator.Validate
	log      *zap.Logger
}

func New(cfg Config, log *zap.Logger) *HTTPClient {
	if log == nil {
		log = zap.NewNop()
	}
	var rc *resty.Client
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		rc = resty.NewWithClient(cc.Client(context.Background()))
	} else {
		rc = resty.New().
			SetHeader("X-Auth-API-Key", cfg.APIKey).
			SetHeader("X-Auth-Subdomain", cfg.Subdomain)
	}
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	rc.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &HTTPClient{rc: rc, validate: validator.New(), log: log}
}

// ---- wire shapes ----

type page[T any] struct {
	Items []T `json:"items"`
	Meta  struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			NextPage    int `json:"next_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

type userDTO struct {
	ID        flexID `json:"id" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type courseDTO struct {
	ID   flexID `json:"id" validate:"required"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type enrollmentDTO struct {
	ID                  flexID     `json:"id" validate:"required"`
	UserID              flexID     `json:"user_id" validate:"required"`
	CourseID            flexID     `json:"course_id" validate:"required"`
	PercentageCompleted float64    `json:"percentage_completed" validate:"gte=0,lte=1"`
	CompletedAt         *time.Time `json:"completed_at"`
	Completed           bool       `json:"completed"`
	Expired             bool       `json:"expired"`
	StartedAt           *time.Time `json:"started_at"`
}

type assessmentDTO struct {
	ID               flexID   `json:"id" validate:"required"`
	Name             string   `json:"name"`
	Type             string   `json:"type" validate:"required,oneof=quiz assignment exam"`
	MaxScore         float64  `json:"max_score" validate:"gte=0"`
	PassingScore     float64  `json:"passing_score" validate:"gte=0"`
	WeightPercentage *float64 `json:"weight_percentage" validate:"omitempty,gte=0,lte=100"`
}

type resultDTO struct {
	ID            flexID    `json:"id" validate:"required"`
	AssessmentID  flexID    `json:"assessment_id" validate:"required"`
	UserID        flexID    `json:"user_id"`
	Score         float64   `json:"score" validate:"gte=0"`
	Percentage    float64   `json:"percentage" validate:"gte=0"`
	Passed        bool      `json:"passed"`
	CompletedAt   time.Time `json:"completed_at"`
	AttemptNumber int       `json:"attempt_number" validate:"gte=0"`
}

// flexID accepts numeric or string ids; Thinkific returns numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

// ---- Client ----

func (c *HTTPClient) GetStudentCertificateData(ctx context.Context, email, courseID string) (StudentData, error) {
	email, courseID = strings.TrimSpace(email), strings.TrimSpace(courseID)
	if email == "" || courseID == "" {
		return StudentData{}, ErrInvalidInput
	}
	out := StudentData{Assessments: []Assessment{}, AssessmentResults: []AssessmentResult{}}

	user, err := c.findUser(ctx, email)
	if err != nil {
		return StudentData{}, err
	}
	if user == nil {
		c.log.Debug("lms user not found", zap.String("email", email))
		return out, nil
	}
	out.User = user

	enrollments, err := c.GetEnrollments(ctx, EnrollmentQuery{UserID: user.ID, CourseID: courseID, Page: 1, Limit: 1})
	if err != nil {
		return StudentData{}, err
	}
	if len(enrollments) == 0 {
		c.log.Debug("lms enrollment not found", zap.String("user_id", user.ID), zap.String("course_id", courseID))
		return out, nil
	}
	out.Enrollment = &enrollments[0]

	course, err := c.getCourse(ctx, courseID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return StudentData{}, err
	}
	out.Course = course

	if out.Assessments, err = c.GetCourseAssessments(ctx, courseID); err != nil {
		return StudentData{}, err
	}
	if out.AssessmentResults, err = c.GetUserAssessmentResults(ctx, user.ID, ResultQuery{CourseID: courseID}); err != nil {
		return StudentData{}, err
	}
	out.OverallScore = overall(out.Assessments, out.AssessmentResults)
	return out, nil
}

// GetEnrollments walks every page unless q.Page pins a single one.
func (c *HTTPClient) GetEnrollments(ctx context.Context, q EnrollmentQuery) ([]Enrollment, error) {
	params := map[string]string{}
	if q.UserID != "" {
		params["query[user_id]"] = q.UserID
	}
	if q.CourseID != "" {
		params["query[course_id]"] = q.CourseID
	}
	items, err := getPages[enrollmentDTO](ctx, c, "/enrollments", nil, params, q.Page, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get enrollments: %w", err)
	}
	out := make([]Enrollment, 0, len(items))
	for _, e := range items {
		if err := c.validate.Struct(e); err != nil {
			return nil, fmt.Errorf("enrollment %q: %w", e.ID, err)
		}
		out = append(out, Enrollment{
			ID:                  string(e.ID),
			UserID:              string(e.UserID),
			CourseID:            string(e.CourseID),
			PercentageCompleted: e.PercentageCompleted * 100,
			CompletedAt:         e.CompletedAt,
			Status:              enrollmentStatus(e),
		})
	}
	return out, nil
}

func (c *HTTPClient) GetUserAssessmentResults(ctx context.Context, userID string, q ResultQuery) ([]AssessmentResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	params := map[string]string{}
	if q.CourseID != "" {
		params["query[course_id]"] = q.CourseID
	}
	if q.AssessmentID != "" {
		params["query[assessment_id]"] = q.AssessmentID
	}
	items, err := getPages[resultDTO](ctx, c, "/users/{id}/assessment_results",
		map[string]string{"id": userID}, params, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("get assessment results: %w", err)
	}
	out := make([]AssessmentResult, 0, len(items))
	for _, r := range items {
		if err := c.validate.Struct(r); err != nil {
			return nil, fmt.Errorf("assessment result %q: %w", r.ID, err)
		}
		uid := string(r.UserID)
		if uid == "" {
			uid = userID
		}
		out = append(out, AssessmentResult{
			ID:            string(r.ID),
			AssessmentID:  string(r.AssessmentID),
			UserID:        uid,
			Score:         r.Score,
			Percentage:    r.Percentage,
			Passed:        r.Passed,
			CompletedAt:   r.CompletedAt,
			AttemptNumber: r.AttemptNumber,
		})
	}
	return out, nil
}

func (c *HTTPClient) GetCourseAssessments(ctx context.Context, courseID string) ([]Assessment, error) {
	if strings.TrimSpace(courseID) == "" {
		return nil, ErrInvalidInput
	}
	items, err := getPages[assessmentDTO](ctx, c, "/courses/{id}/assessments",
		map[string]string{"id": courseID}, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("get course assessments: %w", err)
	}
	out := make([]Assessment, 0, len(items))
	for _, a := range items {
		if err := c.validate.Struct(a); err != nil {
			return nil, fmt.Errorf("assessment %q: %w", a.ID, err)
		}
		out = append(out, Assessment{
			ID:               string(a.ID),
			CourseID:         courseID,
			Name:             a.Name,
			Type:             AssessmentType(a.Type),
			MaxScore:         a.MaxScore,
			PassingScore:     a.PassingScore,
			WeightPercentage: a.WeightPercentage,
		})
	}
	return out, nil
}

func (c *HTTPClient) TestConnection(ctx context.Context) error {
	var body page[courseDTO]
	if err := c.get(ctx, "/courses", nil, map[string]string{"limit": "1"}, &body); err != nil {
		return fmt.Errorf("lms connection test: %w", err)
	}
	return nil
}

func (c *HTTPClient) findUser(ctx context.Context, email string) (*User, error) {
	var body page[userDTO]
	if err := c.get(ctx, "/users", nil, map[string]string{"query[email]": email}, &body); err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	for _, u := range body.Items {
		if !strings.EqualFold(u.Email, email) {
			continue
		}
		if err := c.validate.Struct(u); err != nil {
			return nil, fmt.Errorf("user %q: %w", u.ID, err)
		}
		return &User{ID: string(u.ID), Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}, nil
	}
	return nil, nil
}

func (c *HTTPClient) getCourse(ctx context.Context, courseID string) (*Course, error) {
	var body courseDTO
	if err := c.get(ctx, "/courses/{id}", map[string]string{"id": courseID}, nil, &body); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(body); err != nil {
		return nil, fmt.Errorf("course %q: %w", courseID, err)
	}
	return &Course{ID: string(body.ID), Name: body.Name, Slug: body.Slug}, nil
}

// defaultPageSize is what list calls ask for when the caller sets no limit.
const defaultPageSize = 100

// maxPages bounds a paging walk against an API that never stops returning next_page.
const maxPages = 1000

// getPages follows meta.pagination.next_page and concatenates the items.
// A positive first fetches only that page.
func getPages[T any](ctx context.Context, c *HTTPClient, path string, pathParams, params map[string]string, first, limit int) ([]T, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	pageNo := first
	if pageNo <= 0 {
		pageNo = 1
	}
	var items []T
	for n := 0; n < maxPages; n++ {
		q := make(map[string]string, len(params)+2)
		for k, v := range params {
			q[k] = v
		}
		q["page"] = strconv.Itoa(pageNo)
		q["limit"] = strconv.Itoa(limit)

		var body page[T]
		if err := c.get(ctx, path, pathParams, q, &body); err != nil {
			return nil, err
		}
		items = append(items, body.Items...)

		next := body.Meta.Pagination.NextPage
		if first > 0 || next <= pageNo || len(body.Items) == 0 {
			return items, nil
		}
		pageNo = next
	}
	return nil, fmt.Errorf("%s: more than %d pages", path, maxPages)
}

func (c *HTTPClient) get(ctx context.Context, path string, pathParams, params map[string]string, out any) error {
	res, err := c.rc.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return err
	}
	switch {
	case res.StatusCode() == http.StatusNotFound:
		return ErrNotFound
	case !res.IsSuccess():
		return fmt.Errorf("%s %s: %s", http.MethodGet, path, res.Status())
	}
	return nil
}

func enrollmentStatus(e enrollmentDTO) EnrollmentStatus {
	switch {
	case e.Expired:
		return EnrollmentExpired
	case e.Completed || e.CompletedAt != nil:
		return EnrollmentCompleted
	case e.StartedAt != nil:
		return EnrollmentActive
	default:
		return EnrollmentEnrolled
	}
}

// overall is score-over-max across every graded assessment, counting only
// the latest attempt of each.
func overall(as []Assessment, rs []AssessmentResult) *float64 {
	maxByID := map[string]float64{}
	for _, a := range as {
		maxByID[a.ID] = a.MaxScore
	}
	var got, possible float64
	for _, r := range LatestAttempts(rs) {
		m, ok := maxByID[r.AssessmentID]
		if !ok {
			continue
		}
		got += r.Score
		possible += m
	}
	if possible == 0 {
		return nil
	}
	v := got / possible * 100
	return &v
}
