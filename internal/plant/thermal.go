package plant

import (
	"context"
	"fmt"
	"math/rand"
)

// Thermal simulates a heated object behind a laggy heater element. Two
// state variables separate actuation lag from the controlled quantity: a
// pure first-order model saturates too early and produces degenerate
// tuning sessions.
type Thermal struct {
	Ambient     float64 // surrounding temperature
	HeaterCoeff float64 // heater temperature span at full output
	HeaterLag   float64 // per-tick heater inertia, in (0,1]
	Transfer    float64 // heater-to-object heat transfer coefficient
	Cooling     float64 // object-to-ambient loss coefficient
	OutputScale float64 // control output corresponding to full power
	NoiseLevel  float64 // stddev of additive sensor noise, 0 disables

	heaterTemp float64
	objectTemp float64
	rng        *rand.Rand
}

// NewThermal returns a simulated plant with the reference heater
// parameters: ambient 20, up to 320 degrees at full power, object starting
// cold at 0.
func NewThermal(seed int64) *Thermal {
	t := &Thermal{
		Ambient:     20.0,
		HeaterCoeff: 300.0,
		HeaterLag:   0.3,
		Transfer:    0.5,
		Cooling:     0.3,
		OutputScale: 255.0,
		NoiseLevel:  0.3,
		rng:         rand.New(rand.NewSource(seed)),
	}
	t.Reset(0)
	return t
}

// Advance applies the control output for dt seconds and returns the sensor
// reading. Noise corrupts only the returned reading; the internal state
// stays noise-free.
func (t *Thermal) Advance(_ context.Context, output, dt float64) (float64, error) {
	targetHeater := t.Ambient + (output/t.OutputScale)*t.HeaterCoeff
	t.heaterTemp += (targetHeater - t.heaterTemp) * t.HeaterLag

	net := (t.heaterTemp-t.objectTemp)*t.Transfer - (t.objectTemp-t.Ambient)*t.Cooling
	t.objectTemp += net * dt

	reading := t.objectTemp
	if t.NoiseLevel > 0 && t.rng != nil {
		reading += t.rng.NormFloat64() * t.NoiseLevel
	}
	return reading, nil
}

// Reset puts the object at the given temperature and the heater at ambient.
func (t *Thermal) Reset(objectTemp float64) {
	t.objectTemp = objectTemp
	t.heaterTemp = t.Ambient
}

// Temperatures returns the noise-free internal state.
func (t *Thermal) Temperatures() (heater, object float64) {
	return t.heaterTemp, t.objectTemp
}

// Params returns the model coefficients keyed by name.
func (t *Thermal) Params() map[string]float64 {
	return map[string]float64{
		"ambient":      t.Ambient,
		"heater_coeff": t.HeaterCoeff,
		"heater_lag":   t.HeaterLag,
		"transfer":     t.Transfer,
		"cooling":      t.Cooling,
		"output_scale": t.OutputScale,
		"noise_level":  t.NoiseLevel,
	}
}

// SetParam overrides a single model coefficient.
func (t *Thermal) SetParam(name string, value float64) error {
	switch name {
	case "ambient":
		t.Ambient = value
	case "heater_coeff":
		t.HeaterCoeff = value
	case "heater_lag":
		t.HeaterLag = value
	case "transfer":
		t.Transfer = value
	case "cooling":
		t.Cooling = value
	case "output_scale":
		t.OutputScale = value
	case "noise_level":
		t.NoiseLevel = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
