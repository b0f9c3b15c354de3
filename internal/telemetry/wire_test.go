package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingston115/pidtune/internal/control"
)

func TestParseLine_FullRecord(t *testing.T) {
	rec, ok := ParseLine("5000,100.0,45.23,127.5,54.77,1.0,0.1,0.05")
	require.True(t, ok)

	assert.Equal(t, 5*time.Second, rec.Sample.Elapsed)
	assert.Equal(t, 100.0, rec.Sample.Setpoint)
	assert.Equal(t, 45.23, rec.Sample.Measured)
	assert.Equal(t, 127.5, rec.Sample.Output)
	assert.Equal(t, 54.77, rec.Sample.Error)
	assert.Equal(t, control.Gains{Kp: 1.0, Ki: 0.1, Kd: 0.05}, rec.Gains)
}

func TestParseLine_GainsOptional(t *testing.T) {
	rec, ok := ParseLine("100,100.0,20.0,0.0,80.0")
	require.True(t, ok)
	assert.Equal(t, control.Gains{Kp: 1.0, Ki: 0.1, Kd: 0.05}, rec.Gains,
		"missing gain fields take the firmware defaults")
}

func TestParseLine_Dropped(t *testing.T) {
	cases := []string{
		"",
		"# LLM PID Tuner Firmware v1.0 Ready",
		"no commas here",
		"1,2,3",                  // too few fields
		"abc,100.0,20.0,0.0,80",  // non-numeric
		"100,100.0,20.0,0.0,bad", // non-numeric tail
	}
	for _, line := range cases {
		_, ok := ParseLine(line)
		assert.False(t, ok, "line %q should be dropped", line)
	}
}

func TestFormatLine_RoundTrips(t *testing.T) {
	s := NewSample(5*time.Second, 100, 45.23, 127.5)
	g := control.Gains{Kp: 1.0, Ki: 0.1, Kd: 0.05}

	line := FormatLine(s, g)
	assert.Equal(t, "5000,100.00,45.23,127.50,54.77,1.000,0.100,0.050", line)

	rec, ok := ParseLine(line)
	require.True(t, ok)
	assert.Equal(t, s.Setpoint, rec.Sample.Setpoint)
	assert.Equal(t, s.Measured, rec.Sample.Measured)
	assert.Equal(t, g, rec.Gains)
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "SET P:2 I:0.5 D:0.05", SetCommand(control.Gains{Kp: 2, Ki: 0.5, Kd: 0.05}))
	assert.Equal(t, "SETPOINT:120", SetpointCommand(120))
	assert.Equal(t, "RESET", ResetCommand)
	assert.Equal(t, "STATUS", StatusCommand)
}
