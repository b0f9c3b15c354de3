package telemetry

import "time"

// Sample is one tick of closed-loop telemetry. Immutable once recorded;
// Error is always Setpoint - Measured.
type Sample struct {
	Elapsed  time.Duration // since session start
	Setpoint float64
	Measured float64
	Output   float64
	Error    float64
}

// NewSample builds a sample with the error derived from its fields.
func NewSample(elapsed time.Duration, setpoint, measured, output float64) Sample {
	return Sample{
		Elapsed:  elapsed,
		Setpoint: setpoint,
		Measured: measured,
		Output:   output,
		Error:    setpoint - measured,
	}
}
