package plant

import (
	"context"
	"errors"
)

// Plant produces the next process-variable reading for a control output
// applied over dt seconds. The controller and orchestrator see only this
// interface; whether the value comes from a simulation or an external
// telemetry source is an implementation detail.
type Plant interface {
	Advance(ctx context.Context, output, dt float64) (float64, error)
}

// OutputReporter is implemented by plants that relay the output the
// remote actuator reported alongside each reading. When a reported value
// is present it supersedes the locally computed output in recorded
// telemetry, so analysis sees the actuation that actually happened.
type OutputReporter interface {
	ReportedOutput() (float64, bool)
}

// ErrNoTelemetry indicates the external telemetry source produced no value
// within its timeout. Recoverable: the caller retries on the next tick.
var ErrNoTelemetry = errors.New("plant: no telemetry available")
