package tune

import (
	"time"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
)

// Outcome classifies how a single advisory round ended.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeConverged      Outcome = "converged"
	OutcomeAdvisoryFailed Outcome = "advisory_failed"
	OutcomeUnparsable     Outcome = "unparsable"
)

// Round is the record of one advisory round: the window statistics that
// triggered it, the gains in effect afterwards, and how it ended.
// Duration is the advisory call time; zero for rounds that never called.
type Round struct {
	Number       int
	MeanAbsError float64
	MaxAbsError  float64
	Gains        control.Gains
	Outcome      Outcome
	Rationale    string
	Duration     time.Duration
}

// Report summarizes a finished session.
type Report struct {
	State       State
	Rounds      int
	Ticks       int
	Elapsed     time.Duration
	FinalGains  control.Gains
	BestGains   control.Gains
	BestMeanErr float64
	HaveBest    bool
}

// Observer receives session events as they happen. Callbacks run on the
// orchestrator goroutine and must not block.
type Observer interface {
	OnTick(s telemetry.Sample, g control.Gains)
	OnRound(r Round)
	OnFinish(rep Report)
}
