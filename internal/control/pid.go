package control

import (
	"fmt"
	"math"
)

// Gains holds the three PID coefficients. All must be finite and
// non-negative; a zero coefficient disables its term.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Validate reports whether the gains are usable.
func (g Gains) Validate() error {
	for _, v := range []float64{g.Kp, g.Ki, g.Kd} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coefficient", ErrInvalidGains)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative coefficient", ErrInvalidGains)
		}
	}
	return nil
}

// Limits bounds the controller output. OutputMax caps the absolute output,
// RateMax caps the per-tick change, IntegralMax is the symmetric anti-windup
// clamp on the integral accumulator.
type Limits struct {
	OutputMax   float64
	RateMax     float64
	IntegralMax float64
}

// PID is a positional PID controller with anti-windup, per-tick rate
// limiting and output saturation. It is not safe for concurrent use: Tick
// and SetGains must run on the same logical timeline.
type PID struct {
	gains  Gains
	limits Limits

	integral float64
	prevErr  float64
	prevOut  float64
}

func NewPID(gains Gains, limits Limits) (*PID, error) {
	if err := gains.Validate(); err != nil {
		return nil, err
	}
	if limits.OutputMax <= 0 || limits.RateMax <= 0 || limits.IntegralMax <= 0 {
		return nil, fmt.Errorf("%w: limits must be positive", ErrInvalidGains)
	}
	return &PID{gains: gains, limits: limits}, nil
}

// Tick advances the controller by one interval and returns the control
// output, clamped to [0, OutputMax] with its change from the previous tick
// bounded by RateMax.
func (p *PID) Tick(setpoint, measured, dt float64) (float64, error) {
	if dt <= 0 || math.IsNaN(dt) {
		return p.prevOut, fmt.Errorf("%w: dt=%g", ErrInvalidInterval, dt)
	}

	err := setpoint - measured

	p.integral += err * dt
	p.integral = clamp(p.integral, -p.limits.IntegralMax, p.limits.IntegralMax)

	derivative := (err - p.prevErr) / dt

	raw := p.gains.Kp*err + p.gains.Ki*p.integral + p.gains.Kd*derivative

	// Rate limit before saturation, same order as the actuator firmware:
	// the requested change keeps its sign but never exceeds RateMax.
	delta := raw - p.prevOut
	if math.Abs(delta) > p.limits.RateMax {
		if delta > 0 {
			raw = p.prevOut + p.limits.RateMax
		} else {
			raw = p.prevOut - p.limits.RateMax
		}
	}

	out := clamp(raw, 0, p.limits.OutputMax)

	p.prevErr = err
	p.prevOut = out
	return out, nil
}

// SetGains replaces all three coefficients and zeroes the integral
// accumulator and previous error, so a gain step cannot kick the output
// through stale integral or derivative state. The previous output is kept:
// rate limiting stays anchored to what the actuator last saw.
func (p *PID) SetGains(g Gains) error {
	if err := g.Validate(); err != nil {
		return err
	}
	p.gains = g
	p.integral = 0
	p.prevErr = 0
	return nil
}

// Gains returns the active coefficients.
func (p *PID) Gains() Gains { return p.gains }

// Limits returns the configured output bounds.
func (p *PID) Limits() Limits { return p.limits }

// Reset clears all accumulated state, including the previous output.
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.prevOut = 0
}

// State exposes the internal accumulators for reporting and tests.
func (p *PID) State() (integral, prevErr, prevOut float64) {
	return p.integral, p.prevErr, p.prevOut
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
