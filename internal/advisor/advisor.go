package advisor

import (
	"context"
	"errors"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
)

// Advisor is the external reasoning collaborator: it sees a telemetry
// summary and replies with free-form text expected to contain a gain
// proposal. Treated as opaque and untrusted; replies always go through
// ParseProposal.
type Advisor interface {
	Propose(ctx context.Context, req Request) (string, error)
}

// Request carries one round of telemetry to the advisor.
type Request struct {
	Setpoint     float64
	Gains        control.Gains
	MeanAbsError float64
	MaxAbsError  float64
	Trend        string // one-line trend summary, may be empty
	Samples      []telemetry.Sample
}

// Status is the advisor's verdict on the tuning session.
type Status int

const (
	StatusContinue Status = iota
	StatusConverged
)

func (s Status) String() string {
	if s == StatusConverged {
		return "DONE"
	}
	return "TUNING"
}

// Proposal is a validated gain suggestion parsed from an advisory reply.
// Consumed once by the orchestrator, then discarded.
type Proposal struct {
	Gains     control.Gains
	Rationale string
	Status    Status
}

// Domain errors for advisory operations. All are recoverable at the
// orchestrator: a failed round is a consumed round, never a crash.
var (
	// ErrUnparsableResponse indicates no parse stage could extract gains.
	ErrUnparsableResponse = errors.New("advisor: unparsable response")

	// ErrTimeout indicates the advisory call exceeded its deadline.
	ErrTimeout = errors.New("advisor: request timed out")

	// ErrTransport indicates an HTTP or protocol failure.
	ErrTransport = errors.New("advisor: transport error")
)
