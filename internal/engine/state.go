package engine

// State identifies where a run is in its cycle. Transitions are
// PLANNING → GENERATING → EXECUTING → VALIDATING, then one of the decision
// states; RETRYING re-enters GENERATING, the rest are terminal. PLANNING runs
// exactly once per run.
type State int

const (
	StatePlanning State = iota
	StateGenerating
	StateExecuting
	StateValidating
	StateSuccess
	StateRetrying
	StateExhausted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "PLANNING"
	case StateGenerating:
		return "GENERATING"
	case StateExecuting:
		return "EXECUTING"
	case StateValidating:
		return "VALIDATING"
	case StateSuccess:
		return "SUCCESS"
	case StateRetrying:
		return "RETRYING"
	case StateExhausted:
		return "EXHAUSTED"
	case StateCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Outcome is the closed set of terminal run results.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeExhausted
	OutcomeCancelled
	OutcomeConfigError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeExhausted:
		return "EXHAUSTED"
	case OutcomeCancelled:
		return "CANCELLED"
	case OutcomeConfigError:
		return "CONFIGURATION_ERROR"
	}
	return "UNKNOWN"
}
