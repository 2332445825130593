package scoring

import (
	"math"

	"github.com/mind-engage/certsync/internal/lms"
)

// Aggregate reduces a student's results into practical, written and total
// percentages. Practical draws on assignments and exams, written on quizzes.
// Each category is the sum of scores over the sum of max scores of the
// assessments it counts, so larger assessments weigh more.
//
// defaultPracticalWeight is used when cfg does not carry its own weight.
func Aggregate(assessments []lms.Assessment, results []lms.AssessmentResult, cfg MappingConfig, defaultPracticalWeight float64) Scores {
	var practical, written []lms.Assessment
	for _, a := range assessments {
		switch a.Type {
		case lms.AssessmentAssignment, lms.AssessmentExam:
			practical = append(practical, a)
		case lms.AssessmentQuiz:
			written = append(written, a)
		}
	}

	practical = selectCategory(practical, cfg.PracticalAssignmentIDs, cfg.IncludeAllAssignments)
	written = selectCategory(written, cfg.WrittenQuizIDs, cfg.IncludeAllQuizzes)

	latest := lms.LatestAttempts(results)

	var out Scores
	out.Practical = categoryScore(practical, latest)
	out.Written = categoryScore(written, latest)

	weight := defaultPracticalWeight
	if cfg.PracticalWeight != nil {
		weight = *cfg.PracticalWeight
	}

	switch {
	case out.Practical != nil && out.Written != nil:
		out.Total = ptr(round2(combine(*out.Practical, *out.Written, cfg.CombinedScoreMethod, weight)))
	case out.Practical != nil:
		out.Total = ptr(*out.Practical)
	case out.Written != nil:
		out.Total = ptr(*out.Written)
	}
	return out
}

func combine(practical, written float64, method Method, practicalWeight float64) float64 {
	switch method {
	case MethodAverage:
		return (practical + written) / 2
	case MethodHighest:
		return math.Max(practical, written)
	default:
		return practical*practicalWeight + written*(1-practicalWeight)
	}
}

// selectCategory applies an explicit allow-list when present, otherwise the
// include-all flag. A nil return means the category is not scored.
func selectCategory(in []lms.Assessment, allow []string, includeAll bool) []lms.Assessment {
	if len(allow) > 0 {
		ids := make(map[string]struct{}, len(allow))
		for _, id := range allow {
			ids[id] = struct{}{}
		}
		var out []lms.Assessment
		for _, a := range in {
			if _, ok := ids[a.ID]; ok {
				out = append(out, a)
			}
		}
		return out
	}
	if includeAll {
		return in
	}
	return nil
}

func categoryScore(assessments []lms.Assessment, results map[string]lms.AssessmentResult) *float64 {
	var got, possible float64
	matched := 0
	for _, a := range assessments {
		r, ok := results[a.ID]
		if !ok {
			continue
		}
		matched++
		got += r.Score
		possible += a.MaxScore
	}
	if matched == 0 {
		return nil
	}
	if possible == 0 {
		return ptr(0)
	}
	return ptr(round2(got / possible * 100))
}
