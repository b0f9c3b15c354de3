package advisor

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a control engineer tuning a PID temperature loop.

Judge the telemetry below and propose updated gains:
- heavy oscillation: lower Kp or raise Kd
- slow response: raise Kp (at most 1.2x the current value)
- steady-state error: raise Ki (at most 1.2x the current value)
- overshoot past the setpoint: cut Kp by at least 30% and raise Kd by at least 50%
- prefer small, gradual changes; never change a gain by more than 20% unless correcting overshoot

Reply with strict JSON only, no markdown fences, no extra text:
{"analysis": "short analysis", "p": <number>, "i": <number>, "d": <number>, "status": "TUNING" or "DONE"}
Return "status": "DONE" only when the loop tracks the setpoint with small, stable error.`

// BuildSummary renders a request as the advisory user message: current
// gains, error statistics, trend, and the drained window as CSV rows.
func BuildSummary(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current PID gains: P=%g, I=%g, D=%g\n", req.Gains.Kp, req.Gains.Ki, req.Gains.Kd)
	fmt.Fprintf(&b, "Setpoint: %.2f\n", req.Setpoint)
	if n := len(req.Samples); n > 0 {
		fmt.Fprintf(&b, "Latest reading: %.2f\n", req.Samples[n-1].Measured)
	}
	fmt.Fprintf(&b, "Mean |error|: %.2f, max |error|: %.2f\n", req.MeanAbsError, req.MaxAbsError)
	if req.Trend != "" {
		fmt.Fprintf(&b, "Trend: %s\n", req.Trend)
	}

	fmt.Fprintf(&b, "\nRecent %d samples (time_ms, measured, output, error):\n", len(req.Samples))
	for _, s := range req.Samples {
		fmt.Fprintf(&b, "%d,%.1f,%.0f,%+.1f\n", s.Elapsed.Milliseconds(), s.Measured, s.Output, s.Error)
	}

	return b.String()
}
