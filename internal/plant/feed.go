package plant

import (
	"context"
	"time"
)

// Reading is one externally supplied telemetry value, optionally paired
// with the output the remote actuator reported next to it.
type Reading struct {
	Value     float64
	Output    float64
	HasOutput bool
}

// Feed is a pass-through plant: readings come from an external telemetry
// source instead of a model. Advance ignores the control output entirely;
// the real actuator applied it on the other side of the transport.
type Feed struct {
	values  chan Reading
	timeout time.Duration

	reported    float64
	hasReported bool
}

// NewFeed returns a feed with the given buffer depth and per-read timeout.
func NewFeed(buffer int, timeout time.Duration) *Feed {
	return &Feed{
		values:  make(chan Reading, buffer),
		timeout: timeout,
	}
}

// Push queues a plain reading with no reported output.
func (f *Feed) Push(v float64) {
	f.push(Reading{Value: v})
}

// PushReading queues a reading together with the output the device
// reported applying when it took it.
func (f *Feed) PushReading(value, output float64) {
	f.push(Reading{Value: value, Output: output, HasOutput: true})
}

// push drops the oldest queued reading when the buffer is full so a
// stalled consumer sees fresh data, not a stale backlog.
func (f *Feed) push(r Reading) {
	for {
		select {
		case f.values <- r:
			return
		default:
			select {
			case <-f.values:
			default:
			}
		}
	}
}

// Advance returns the next queued reading, waiting up to the configured
// timeout. Starvation yields ErrNoTelemetry, which callers treat as
// retry-next-tick.
func (f *Feed) Advance(ctx context.Context, _, _ float64) (float64, error) {
	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case r := <-f.values:
		f.reported = r.Output
		f.hasReported = r.HasOutput
		return r.Value, nil
	case <-timer.C:
		return 0, ErrNoTelemetry
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ReportedOutput returns the output that arrived with the last reading.
// Must be called from the same goroutine as Advance.
func (f *Feed) ReportedOutput() (float64, bool) {
	return f.reported, f.hasReported
}
