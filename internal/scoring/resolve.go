package scoring

// Resolve is the only place a passed/failed status is decided.
//
// With requiresBoth, both scores must be present and at or above threshold;
// a missing score fails. Otherwise any present score at or above threshold
// passes.
func Resolve(practical, written *float64, threshold float64, requiresBoth bool) Status {
	clears := func(s *float64) bool { return s != nil && *s >= threshold }

	if requiresBoth {
		if clears(practical) && clears(written) {
			return StatusPassed
		}
		return StatusFailed
	}
	if clears(practical) || clears(written) {
		return StatusPassed
	}
	return StatusFailed
}
