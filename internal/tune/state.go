package tune

// State is the orchestrator's position in the tuning loop.
type State int

const (
	StateCollecting State = iota
	StateAnalyzing
	StateApplying
	StateConverged
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "COLLECTING"
	case StateAnalyzing:
		return "ANALYZING"
	case StateApplying:
		return "APPLYING"
	case StateConverged:
		return "CONVERGED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the session is over.
func (s State) Terminal() bool {
	return s == StateConverged || s == StateAborted
}
