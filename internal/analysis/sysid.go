package analysis

import (
	"errors"
	"fmt"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
)

// ErrInsufficientData indicates a recording too short or too flat to
// identify.
var ErrInsufficientData = errors.New("analysis: insufficient step-response data")

// FOPDT is a first-order-plus-dead-time model estimated from a step
// response: G(s) = K * e^(-theta*s) / (tau*s + 1).
type FOPDT struct {
	Gain         float64 // steady-state output change per unit input change
	TimeConstant float64 // tau, seconds to 63.2% of the rise
	DeadTime     float64 // theta, seconds to 5% of the rise
}

func (m FOPDT) String() string {
	return fmt.Sprintf("G(s) = %.4f * e^(-%.2fs) / (%.2fs + 1)", m.Gain, m.DeadTime, m.TimeConstant)
}

// EstimateFOPDT identifies a first-order model from recorded step-response
// telemetry. The recording should start near rest and hold a constant
// control output; gain is computed against the output swing seen in the
// samples.
func EstimateFOPDT(samples []telemetry.Sample) (FOPDT, error) {
	if len(samples) < 5 {
		return FOPDT{}, ErrInsufficientData
	}

	initial := samples[0].Measured

	// Steady state: mean of the last up-to-10 readings.
	tailLen := 10
	if tailLen > len(samples) {
		tailLen = len(samples)
	}
	steady := 0.0
	for _, s := range samples[len(samples)-tailLen:] {
		steady += s.Measured
	}
	steady /= float64(tailLen)

	rise := steady - initial
	if rise <= 0 {
		return FOPDT{}, fmt.Errorf("%w: no measurable rise", ErrInsufficientData)
	}

	deltaOut := samples[len(samples)-1].Output - samples[0].Output
	if deltaOut <= 0 {
		// Constant-output recording: gain against the held output level.
		deltaOut = samples[len(samples)-1].Output
	}
	if deltaOut <= 0 {
		return FOPDT{}, fmt.Errorf("%w: no input step", ErrInsufficientData)
	}

	start := samples[0].Elapsed.Seconds()
	tau := samples[len(samples)-1].Elapsed.Seconds() - start
	target63 := initial + rise*0.632
	for _, s := range samples {
		if s.Measured >= target63 {
			tau = s.Elapsed.Seconds() - start
			break
		}
	}

	theta := 0.0
	target5 := initial + rise*0.05
	for _, s := range samples {
		if s.Measured > target5 {
			theta = s.Elapsed.Seconds() - start
			break
		}
	}

	return FOPDT{
		Gain:         rise / deltaOut,
		TimeConstant: tau,
		DeadTime:     theta,
	}, nil
}

// ZieglerNichols returns open-loop Z-N initial gains for the model.
// Returns an error when the model parameters cannot support the formulas
// (zero gain, time constant, or dead time).
func (m FOPDT) ZieglerNichols() (control.Gains, error) {
	if m.Gain <= 0 || m.TimeConstant <= 0 || m.DeadTime <= 0 {
		return control.Gains{}, fmt.Errorf("%w: model parameters unusable for Z-N", ErrInsufficientData)
	}
	return control.Gains{
		Kp: 1.2 * m.TimeConstant / (m.Gain * m.DeadTime),
		Ki: 0.6 * m.TimeConstant / m.Gain,
		Kd: 0.6 * m.TimeConstant * m.DeadTime / m.Gain,
	}, nil
}
