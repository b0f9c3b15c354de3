package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingston115/pidtune/internal/control"
)

var currentGains = control.Gains{Kp: 1.0, Ki: 0.1, Kd: 0.05}

func TestParseProposal_StrictJSON(t *testing.T) {
	p, err := ParseProposal(`{"analysis": "slow response", "p": 2.0, "i": 0.5, "d": 0.05, "status": "TUNING"}`, currentGains)
	require.NoError(t, err)

	assert.Equal(t, control.Gains{Kp: 2.0, Ki: 0.5, Kd: 0.05}, p.Gains)
	assert.Equal(t, "slow response", p.Rationale)
	assert.Equal(t, StatusContinue, p.Status)
}

func TestParseProposal_Done(t *testing.T) {
	p, err := ParseProposal(`{"analysis": "stable", "p": 2.0, "i": 0.5, "d": 0.05, "status": "DONE"}`, currentGains)
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, p.Status)
}

func TestParseProposal_WrappedInProse(t *testing.T) {
	text := `I think P should go up. {"p": 3.0, "i": 0.4, "d": 0.1}`
	p, err := ParseProposal(text, currentGains)
	require.NoError(t, err)
	assert.Equal(t, control.Gains{Kp: 3.0, Ki: 0.4, Kd: 0.1}, p.Gains)
}

func TestParseProposal_CodeFence(t *testing.T) {
	text := "Here is my suggestion:\n```json\n{\"analysis\": \"overshoot\", \"p\": 0.7, \"i\": 0.1, \"d\": 0.2, \"status\": \"TUNING\"}\n```\nGood luck!"
	p, err := ParseProposal(text, currentGains)
	require.NoError(t, err)
	assert.Equal(t, control.Gains{Kp: 0.7, Ki: 0.1, Kd: 0.2}, p.Gains)
	assert.Equal(t, "overshoot", p.Rationale)
}

func TestParseProposal_KeyValueFallback(t *testing.T) {
	// No balanced JSON object anywhere, only loose key-value pairs.
	text := `my suggestion: "p": 3.0 and "i": 0.4 plus "d": 0.1`
	p, err := ParseProposal(text, currentGains)
	require.NoError(t, err)
	assert.Equal(t, control.Gains{Kp: 3.0, Ki: 0.4, Kd: 0.1}, p.Gains)
}

func TestParseProposal_MissingFieldKeepsCurrentGain(t *testing.T) {
	text := `"p": 3.0 and "d": 0.1, leave the rest`
	p, err := ParseProposal(text, currentGains)
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.Gains.Kp)
	assert.Equal(t, 0.1, p.Gains.Ki, "missing field falls back to the current gain, never zero")
	assert.Equal(t, 0.1, p.Gains.Kd)
}

func TestParseProposal_StagesAgree(t *testing.T) {
	// The same underlying gains through all three stages must yield
	// identical proposals.
	variants := []string{
		`{"p": 2.5, "i": 0.3, "d": 0.08}`,
		`The loop oscillates a bit. {"p": 2.5, "i": 0.3, "d": 0.08} should help.`,
		`new values: "p": 2.5, "i": 0.3, "d": 0.08`,
	}
	want := control.Gains{Kp: 2.5, Ki: 0.3, Kd: 0.08}
	for _, text := range variants {
		p, err := ParseProposal(text, currentGains)
		require.NoError(t, err, "input %q", text)
		assert.Equal(t, want, p.Gains, "input %q", text)
		assert.Equal(t, StatusContinue, p.Status)
	}
}

func TestParseProposal_UnrecognizedStatusDefaultsToContinue(t *testing.T) {
	p, err := ParseProposal(`{"p": 1, "i": 1, "d": 1, "status": "MAYBE"}`, currentGains)
	require.NoError(t, err)
	assert.Equal(t, StatusContinue, p.Status)
}

func TestParseProposal_Unparsable(t *testing.T) {
	cases := []string{
		"",
		"I cannot analyze this data.",
		"try harder next time { no numbers here }",
	}
	for _, text := range cases {
		_, err := ParseProposal(text, currentGains)
		assert.ErrorIs(t, err, ErrUnparsableResponse, "input %q", text)
	}
}

func TestParseProposal_RejectsNegativeGains(t *testing.T) {
	_, err := ParseProposal(`{"p": -1.0, "i": 0.1, "d": 0.05}`, currentGains)
	assert.ErrorIs(t, err, ErrUnparsableResponse)
}

func TestParseProposal_IgnoresExtraFields(t *testing.T) {
	p, err := ParseProposal(`{"p": 1.5, "i": 0.2, "d": 0.1, "confidence": 0.9, "notes": "x"}`, currentGains)
	require.NoError(t, err)
	assert.Equal(t, control.Gains{Kp: 1.5, Ki: 0.2, Kd: 0.1}, p.Gains)
}

func TestFirstBracedObject(t *testing.T) {
	inner, ok := firstBracedObject(`prefix {"a": {"nested": 1}, "b": 2} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"nested": 1}, "b": 2}`, inner)

	_, ok = firstBracedObject("no braces")
	assert.False(t, ok)

	_, ok = firstBracedObject("{never closed")
	assert.False(t, ok)
}

func TestFirstBracedObject_EscapedStrings(t *testing.T) {
	// An escaped quote keeps the string open, so the brace inside it
	// must not close the object.
	inner, ok := firstBracedObject(`note {"analysis": "use \"p\" not }", "p": 1} end`)
	require.True(t, ok)
	assert.Equal(t, `{"analysis": "use \"p\" not }", "p": 1}`, inner)

	// A trailing escaped backslash ends the escape; the next quote
	// really closes the string.
	inner, ok = firstBracedObject(`path {"dir": "c:\\", "p": 2} end`)
	require.True(t, ok)
	assert.Equal(t, `{"dir": "c:\\", "p": 2}`, inner)
}
