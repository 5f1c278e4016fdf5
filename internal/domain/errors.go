package domain

import "errors"

// Pipeline error taxonomy. Stage-local failures are absorbed into
// degradation metadata wherever a safe default exists; these sentinels mark
// the cases the orchestrator must route through a fallback policy.
var (
	// ErrFeatureUnavailable means a required lookup dependency was
	// unreachable. Cold-start accounts are not this error; they get defaults.
	ErrFeatureUnavailable = errors.New("required feature lookup unavailable")

	// ErrSubModelTimeout marks one sub-model exceeding its per-model budget.
	ErrSubModelTimeout = errors.New("sub-model timed out")

	// ErrSubModelError marks one sub-model failing for any non-timeout cause.
	ErrSubModelError = errors.New("sub-model failed")

	// ErrEnsembleUnavailable means every sub-model failed or timed out. The
	// decision engine falls back to rule-only policy, never to a fabricated
	// score.
	ErrEnsembleUnavailable = errors.New("all sub-models unavailable")

	// ErrDeadlineExceeded means the whole-invocation budget elapsed; the
	// orchestrator answers with the fail-open-to-review assessment.
	ErrDeadlineExceeded = errors.New("pipeline deadline exceeded")
)
