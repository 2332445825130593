package scoresync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/certsync/internal/audit"
	"github.com/mind-engage/certsync/internal/certreq"
	"github.com/mind-engage/certsync/internal/lms"
	"github.com/mind-engage/certsync/internal/scoring"
)

type Clock func() time.Time

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration)

type ProgressFunc func(completed, total int)

type Config struct {
	DefaultPassThreshold   float64
	DefaultPracticalWeight float64
	DefaultWrittenWeight   float64
	DefaultRequiresBoth    bool
	BatchDelay             time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultPassThreshold:   80,
		DefaultPracticalWeight: 0.5,
		DefaultWrittenWeight:   0.5,
		DefaultRequiresBoth:    true,
		BatchDelay:             500 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.DefaultPassThreshold < 0 || c.DefaultPassThreshold > 100 {
		return fmt.Errorf("default pass threshold must be within [0,100], got %v", c.DefaultPassThreshold)
	}
	if c.DefaultPracticalWeight < 0 || c.DefaultWrittenWeight < 0 {
		return errors.New("default weights must not be negative")
	}
	if math.Abs(c.DefaultPracticalWeight+c.DefaultWrittenWeight-1) > 1e-9 {
		return fmt.Errorf("default weights must sum to 1, got %v + %v", c.DefaultPracticalWeight, c.DefaultWrittenWeight)
	}
	if c.BatchDelay < 0 {
		return errors.New("batch delay must not be negative")
	}
	return nil
}

// SyncedData is what a successful sync wrote, minus bookkeeping timestamps.
type SyncedData struct {
	PracticalScore        *float64       `json:"practical_score,omitempty"`
	WrittenScore          *float64       `json:"written_score,omitempty"`
	TotalScore            *float64       `json:"total_score,omitempty"`
	CalculatedStatus      scoring.Status `json:"calculated_status"`
	CompletionDate        *time.Time     `json:"completion_date,omitempty"`
	ThinkificCourseID     string         `json:"thinkific_course_id"`
	ThinkificEnrollmentID string         `json:"thinkific_enrollment_id"`
}

type SyncResult struct {
	CertificateRequestID string      `json:"certificate_request_id"`
	Email                string      `json:"email"`
	Success              bool        `json:"success"`
	Error                string      `json:"error,omitempty"`
	SyncedData           *SyncedData `json:"synced_data,omitempty"`
}

type BatchResult struct {
	TotalProcessed int          `json:"total_processed"`
	Successful     int          `json:"successful"`
	Failed         int          `json:"failed"`
	Results        []SyncResult `json:"results"`
	Errors         []string     `json:"errors"`
}

// Service pulls LMS results for certificate requests, scores them and writes
// the outcome back to the store.
type Service struct {
	Store certreq.Store
	LMS   lms.Client
	Audit audit.Writer // optional
	Now   Clock
	Sleep Sleeper

	cfg Config
	log *zap.Logger
}

func New(store certreq.Store, client lms.Client, cfg Config, log *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		Store: store,
		LMS:   client,
		Now:   time.Now,
		Sleep: sleepCtx,
		cfg:   cfg,
		log:   log.Named("scoresync"),
	}, nil
}

func (s *Service) Config() Config { return s.cfg }

// SyncRequest runs the full pipeline for one certificate request. Every
// failure is reported in the result; it never returns an error.
func (s *Service) SyncRequest(ctx context.Context, requestID, courseID string, mapping *scoring.MappingConfig) SyncResult {
	res := SyncResult{CertificateRequestID: requestID}
	start := s.Now()

	data, err := s.syncOne(ctx, requestID, courseID, mapping, &res)
	if err != nil {
		res.Error = err.Error()
		s.log.Warn("score sync failed", zap.String("request_id", requestID), zap.Error(err))
	} else {
		res.Success = true
		res.SyncedData = data
		s.log.Info("score sync complete",
			zap.String("request_id", requestID),
			zap.String("status", string(data.CalculatedStatus)),
			zap.Duration("took", s.Now().Sub(start)))
	}
	s.record(ctx, res)
	return res
}

func (s *Service) syncOne(ctx context.Context, requestID, courseID string, mapping *scoring.MappingConfig, res *SyncResult) (*SyncedData, error) {
	req, err := s.Store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, certreq.ErrNotFound) {
			return nil, errors.New("certificate request not found")
		}
		return nil, fmt.Errorf("load certificate request: %w", err)
	}
	res.Email = req.Email
	if strings.TrimSpace(req.Email) == "" {
		return nil, errors.New("certificate request has no student email")
	}
	if courseID == "" {
		courseID = req.CourseID
	}
	if courseID == "" {
		return nil, errors.New("no course id supplied or stored on request")
	}

	cfg := scoring.DefaultMapping()
	if mapping != nil {
		cfg = *mapping
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sd, err := s.LMS.GetStudentCertificateData(ctx, req.Email, courseID)
	if err != nil {
		return nil, err
	}
	if sd.Enrollment == nil {
		return nil, errors.New("no enrollment found for student in course")
	}

	scores := scoring.Aggregate(sd.Assessments, sd.AssessmentResults, cfg, s.cfg.DefaultPracticalWeight)

	threshold := s.cfg.DefaultPassThreshold
	if req.PassThreshold != nil {
		threshold = *req.PassThreshold
	}
	requiresBoth := s.cfg.DefaultRequiresBoth
	if req.RequiresBoth != nil {
		requiresBoth = *req.RequiresBoth
	}
	status := scoring.Resolve(scores.Practical, scores.Written, threshold, requiresBoth)

	now := s.Now().UTC()
	upd := certreq.SyncUpdate{
		PracticalScore:        scores.Practical,
		WrittenScore:          scores.Written,
		TotalScore:            scores.Total,
		CompletionDate:        sd.Enrollment.CompletedAt,
		OnlineCompletionDate:  sd.Enrollment.CompletedAt,
		CalculatedStatus:      status,
		ThinkificCourseID:     courseID,
		ThinkificEnrollmentID: sd.Enrollment.ID,
		LastScoreSync:         now,
		UpdatedAt:             now,
	}
	if err := s.Store.ApplySync(ctx, requestID, upd); err != nil {
		return nil, fmt.Errorf("update certificate request: %w", err)
	}

	return &SyncedData{
		PracticalScore:        scores.Practical,
		WrittenScore:          scores.Written,
		TotalScore:            scores.Total,
		CalculatedStatus:      status,
		CompletionDate:        sd.Enrollment.CompletedAt,
		ThinkificCourseID:     courseID,
		ThinkificEnrollmentID: sd.Enrollment.ID,
	}, nil
}

// SyncBatch syncs ids one at a time, pausing BatchDelay between items.
// A failing item never stops the batch; cancelling ctx only shortens the
// pauses.
func (s *Service) SyncBatch(ctx context.Context, ids []string, courseID string, mapping *scoring.MappingConfig, progress ProgressFunc) BatchResult {
	out := BatchResult{Results: make([]SyncResult, 0, len(ids)), Errors: []string{}}
	for i, id := range ids {
		r := s.SyncRequest(ctx, id, courseID, mapping)
		out.Results = append(out.Results, r)
		out.TotalProcessed++
		if r.Success {
			out.Successful++
		} else {
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", id, r.Error))
		}
		if progress != nil {
			progress(i+1, len(ids))
		}
		if i < len(ids)-1 && s.cfg.BatchDelay > 0 {
			s.Sleep(ctx, s.cfg.BatchDelay)
		}
	}
	s.log.Info("batch sync finished",
		zap.Int("total", out.TotalProcessed),
		zap.Int("successful", out.Successful),
		zap.Int("failed", out.Failed))
	return out
}

// SyncGroup syncs every request that belongs to a batch or roster.
func (s *Service) SyncGroup(ctx context.Context, g certreq.Group, courseID string, mapping *scoring.MappingConfig, progress ProgressFunc) BatchResult {
	empty := BatchResult{Results: []SyncResult{}}
	if err := g.Validate(); err != nil {
		empty.Errors = []string{err.Error()}
		return empty
	}
	ids, err := s.Store.ListIDs(ctx, g)
	if err != nil {
		s.log.Error("list group members", zap.String("kind", string(g.Kind)), zap.String("id", g.ID), zap.Error(err))
		empty.Errors = []string{fmt.Sprintf("failed to load certificate requests for %s %s: %v", g.Kind, g.ID, err)}
		return empty
	}
	if len(ids) == 0 {
		empty.Errors = []string{fmt.Sprintf("No certificate requests found for this %s", g.Kind)}
		return empty
	}
	return s.SyncBatch(ctx, ids, courseID, mapping, progress)
}

func (s *Service) record(ctx context.Context, r SyncResult) {
	if s.Audit == nil {
		return
	}
	e := audit.Entry{
		Action:     audit.ActionScoreSync,
		EntityType: "certificate_request",
		EntityID:   r.CertificateRequestID,
		Status:     audit.StatusSuccess,
		CreatedAt:  s.Now(),
	}
	if r.Success {
		e.Metadata = map[string]any{
			"calculated_status": string(r.SyncedData.CalculatedStatus),
			"course_id":         r.SyncedData.ThinkificCourseID,
		}
	} else {
		e.Status = audit.StatusFailure
		e.Message = r.Error
	}
	// The audit trail must not turn a finished sync into a failure.
	if err := s.Audit.Append(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("audit append failed", zap.String("request_id", r.CertificateRequestID), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
