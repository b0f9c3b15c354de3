package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kingston115/pidtune/internal/control"
)

// Wire format shared with the firmware side of a serial bridge.
//
// Ingress, one line per tick:
//
//	timestamp_ms,setpoint,input,pwm,error[,kp,ki,kd]
//
// Comment lines start with '#'. Malformed lines are dropped, never fatal.
// Egress commands:
//
//	SET P:<f> I:<f> D:<f>
//	SETPOINT:<f>
//	RESET
//	STATUS
//
// The receiver is required to zero its integral accumulator on every SET.

// Default gains reported when an ingress line omits the gain fields.
var defaultLineGains = control.Gains{Kp: 1.0, Ki: 0.1, Kd: 0.05}

// LineRecord is one parsed telemetry ingress line.
type LineRecord struct {
	Sample Sample
	Gains  control.Gains
}

// ParseLine parses a telemetry ingress line. ok is false for comments,
// blank lines and anything malformed.
func ParseLine(line string) (LineRecord, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, ",") {
		return LineRecord{}, false
	}

	parts := strings.Split(line, ",")
	if len(parts) < 5 {
		return LineRecord{}, false
	}

	fields := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return LineRecord{}, false
		}
		fields = append(fields, v)
	}

	rec := LineRecord{
		Sample: Sample{
			Elapsed:  time.Duration(fields[0]) * time.Millisecond,
			Setpoint: fields[1],
			Measured: fields[2],
			Output:   fields[3],
			Error:    fields[4],
		},
		Gains: defaultLineGains,
	}
	if len(fields) >= 8 {
		rec.Gains = control.Gains{Kp: fields[5], Ki: fields[6], Kd: fields[7]}
	}
	return rec, true
}

// FormatLine renders a sample and gains in the ingress format, with the
// firmware's precision: two decimals for process values, three for gains.
func FormatLine(s Sample, g control.Gains) string {
	return fmt.Sprintf("%d,%.2f,%.2f,%.2f,%.2f,%.3f,%.3f,%.3f",
		s.Elapsed.Milliseconds(), s.Setpoint, s.Measured, s.Output, s.Error,
		g.Kp, g.Ki, g.Kd)
}

// SetCommand formats the gain-update command. The receiver must zero its
// integral accumulator when it applies this.
func SetCommand(g control.Gains) string {
	return fmt.Sprintf("SET P:%g I:%g D:%g", g.Kp, g.Ki, g.Kd)
}

// SetpointCommand formats a setpoint change.
func SetpointCommand(sp float64) string {
	return fmt.Sprintf("SETPOINT:%g", sp)
}

// Parameterless commands.
const (
	ResetCommand  = "RESET"
	StatusCommand = "STATUS"
)
