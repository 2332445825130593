package scoring

import (
	"fmt"
	"math"
)

// Status is the calculated outcome stored on a certificate request.
type Status string

const (
	StatusPending Status = "pending"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
)

type Method string

const (
	MethodAverage  Method = "average"
	MethodWeighted Method = "weighted"
	MethodHighest  Method = "highest"
)

// MappingConfig controls which assessments feed the practical and written
// categories and how the two are combined into a total.
type MappingConfig struct {
	PracticalAssignmentIDs []string `json:"practical_assignment_ids,omitempty" yaml:"practical_assignment_ids"`
	WrittenQuizIDs         []string `json:"written_quiz_ids,omitempty" yaml:"written_quiz_ids"`
	CombinedScoreMethod    Method   `json:"combined_score_method,omitempty" yaml:"combined_score_method"`
	IncludeAllQuizzes      bool     `json:"include_all_quizzes" yaml:"include_all_quizzes"`
	IncludeAllAssignments  bool     `json:"include_all_assignments" yaml:"include_all_assignments"`
	// PracticalWeight overrides the service default for MethodWeighted.
	PracticalWeight *float64 `json:"practical_weight,omitempty" yaml:"practical_weight"`
}

// DefaultMapping counts every quiz and every assignment/exam and combines
// them with the weighted method.
func DefaultMapping() MappingConfig {
	return MappingConfig{
		CombinedScoreMethod:   MethodWeighted,
		IncludeAllQuizzes:     true,
		IncludeAllAssignments: true,
	}
}

func (m MappingConfig) Validate() error {
	switch m.CombinedScoreMethod {
	case "", MethodAverage, MethodWeighted, MethodHighest:
	default:
		return fmt.Errorf("unknown combined_score_method %q", m.CombinedScoreMethod)
	}
	if m.PracticalWeight != nil {
		w := *m.PracticalWeight
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("practical_weight must be within [0,1], got %v", w)
		}
	}
	return nil
}

// Scores holds the aggregated percentages; nil means the category produced no score.
type Scores struct {
	Practical *float64 `json:"practical_score,omitempty"`
	Written   *float64 `json:"written_score,omitempty"`
	Total     *float64 `json:"total_score,omitempty"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func ptr(v float64) *float64 { return &v }
