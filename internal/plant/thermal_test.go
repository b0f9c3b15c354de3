package plant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThermal_HeatsUnderFullPower(t *testing.T) {
	p := NewThermal(42)
	p.NoiseLevel = 0

	var temp float64
	var err error
	for i := 0; i < 200; i++ {
		temp, err = p.Advance(context.Background(), 255, 0.05)
		require.NoError(t, err)
	}
	assert.Greater(t, temp, 100.0, "full power should heat the object well past 100")
}

func TestThermal_CoolsTowardAmbientAtZeroPower(t *testing.T) {
	p := NewThermal(42)
	p.NoiseLevel = 0
	p.Reset(150)

	var temp float64
	var err error
	for i := 0; i < 2000; i++ {
		temp, err = p.Advance(context.Background(), 0, 0.05)
		require.NoError(t, err)
	}
	assert.InDelta(t, p.Ambient, temp, 2.0)
}

func TestThermal_HeaterLagsOutput(t *testing.T) {
	p := NewThermal(1)
	p.NoiseLevel = 0

	_, err := p.Advance(context.Background(), 255, 0.05)
	require.NoError(t, err)

	heater, _ := p.Temperatures()
	full := p.Ambient + p.HeaterCoeff
	assert.Less(t, heater, full, "heater must not jump straight to its target")
	assert.Greater(t, heater, p.Ambient, "heater must move toward its target")
}

func TestThermal_NoiseOnlyOnReading(t *testing.T) {
	p := NewThermal(7)
	p.NoiseLevel = 5.0

	_, err := p.Advance(context.Background(), 128, 0.05)
	require.NoError(t, err)
	_, before := p.Temperatures()

	// Same inputs on a clone without noise: internal state must match.
	q := NewThermal(7)
	q.NoiseLevel = 0
	_, err = q.Advance(context.Background(), 128, 0.05)
	require.NoError(t, err)
	_, clean := q.Temperatures()

	assert.Equal(t, clean, before, "noise must not corrupt internal state")
}

func TestThermal_DeterministicWithSeed(t *testing.T) {
	a := NewThermal(99)
	b := NewThermal(99)

	for i := 0; i < 50; i++ {
		va, err := a.Advance(context.Background(), 200, 0.05)
		require.NoError(t, err)
		vb, err := b.Advance(context.Background(), 200, 0.05)
		require.NoError(t, err)
		assert.Equal(t, va, vb)
	}
}

func TestThermal_SetParam(t *testing.T) {
	p := NewThermal(1)
	require.NoError(t, p.SetParam("cooling", 0.5))
	assert.Equal(t, 0.5, p.Cooling)
	assert.Error(t, p.SetParam("bogus", 1.0))
}
