// Package tune drives the closed-loop tuning session: a fixed-rate
// controller/plant tick loop feeding a telemetry window, with advisory
// rounds that propose and apply new gains until the loop converges or
// the round budget runs out.
package tune

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kingston115/pidtune/internal/advisor"
	"github.com/kingston115/pidtune/internal/analysis"
	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/plant"
	"github.com/kingston115/pidtune/internal/telemetry"
)

// ErrRoundLimit indicates the session hit its round budget without
// converging. The session is reported as aborted, not failed.
var ErrRoundLimit = errors.New("tune: round limit exceeded")

// Options configure one tuning session.
type Options struct {
	Interval       time.Duration
	Setpoint       float64
	MaxRounds      int
	MaxGainChange  float64 // per-term fraction per round, 0 disables
	AdvisorTimeout time.Duration

	// Realtime paces ticks on a wall-clock ticker and uses measured
	// elapsed time as dt. Off, the loop runs as fast as the plant allows
	// with the nominal interval as dt.
	Realtime bool
}

func (o Options) validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("tune: interval must be positive, got %v", o.Interval)
	}
	if o.MaxRounds <= 0 {
		return fmt.Errorf("tune: max rounds must be positive, got %d", o.MaxRounds)
	}
	if o.MaxGainChange < 0 || o.MaxGainChange >= 1 {
		return fmt.Errorf("tune: max gain change must be in [0,1), got %g", o.MaxGainChange)
	}
	if o.AdvisorTimeout <= 0 {
		return fmt.Errorf("tune: advisor timeout must be positive, got %v", o.AdvisorTimeout)
	}
	return nil
}

// Orchestrator owns the session state machine. Not safe for concurrent
// use; Run executes the whole session on the calling goroutine and
// observers are invoked from it.
type Orchestrator struct {
	pid       *control.PID
	plant     plant.Plant
	window    *telemetry.Window
	advisor   advisor.Advisor
	opts      Options
	observers []Observer

	state    State
	round    int
	ticks    int
	elapsed  time.Duration
	lastOut  float64
	pending  string // raw advisory text awaiting APPLYING
	lastMean float64
	lastMax  float64
	lastCall time.Duration
	best     control.Gains
	bestMean float64
	haveBest bool
}

func New(pid *control.PID, p plant.Plant, w *telemetry.Window, adv advisor.Advisor, opts Options) (*Orchestrator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		pid:     pid,
		plant:   p,
		window:  w,
		advisor: adv,
		opts:    opts,
		state:   StateCollecting,
	}, nil
}

func (o *Orchestrator) AddObserver(obs Observer) { o.observers = append(o.observers, obs) }

// State returns the current machine state.
func (o *Orchestrator) State() State { return o.state }

// Run executes the session until it converges, aborts, or ctx is
// cancelled. The report is valid in every case; the error is nil only
// for a converged session.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	var ticker *time.Ticker
	if o.opts.Realtime {
		ticker = time.NewTicker(o.opts.Interval)
		defer ticker.Stop()
	}
	last := start

	for !o.state.Terminal() {
		// Cancellation is checked at the top of every transition.
		if err := ctx.Err(); err != nil {
			o.state = StateAborted
			return o.finish(start), err
		}

		switch o.state {
		case StateCollecting:
			dt := o.opts.Interval.Seconds()
			if o.opts.Realtime {
				select {
				case <-ctx.Done():
					o.state = StateAborted
					return o.finish(start), ctx.Err()
				case now := <-ticker.C:
					dt = now.Sub(last).Seconds()
					last = now
				}
			}
			if err := o.tick(ctx, dt); err != nil {
				o.state = StateAborted
				return o.finish(start), err
			}
			if o.window.Ready() {
				o.state = StateAnalyzing
			}

		case StateAnalyzing:
			o.analyze(ctx)
			if ticker != nil {
				last = reanchor(ticker)
			}
			if o.roundLimitHit() {
				o.state = StateAborted
				return o.finish(start), ErrRoundLimit
			}

		case StateApplying:
			o.apply()
			if ticker != nil {
				last = reanchor(ticker)
			}
			if o.roundLimitHit() {
				o.state = StateAborted
				return o.finish(start), ErrRoundLimit
			}
		}
	}

	return o.finish(start), nil
}

// reanchor resets the realtime dt origin after a blocking advisory
// round, discarding any tick that fired during the pause. Without it the
// first collecting tick would absorb the whole advisory latency as dt,
// which blows up both the integral step and the plant's Euler update.
func reanchor(ticker *time.Ticker) time.Time {
	select {
	case <-ticker.C:
	default:
	}
	return time.Now()
}

// tick advances plant and controller by one interval and records the
// resulting sample. Telemetry starvation skips the tick; anything else
// is fatal to the session.
func (o *Orchestrator) tick(ctx context.Context, dt float64) error {
	measured, err := o.plant.Advance(ctx, o.lastOut, dt)
	if errors.Is(err, plant.ErrNoTelemetry) {
		log.Printf("no telemetry within timeout, skipping tick")
		o.elapsed += time.Duration(dt * float64(time.Second))
		return nil
	}
	if err != nil {
		return err
	}

	out, err := o.pid.Tick(o.opts.Setpoint, measured, dt)
	if err != nil {
		return err
	}

	o.elapsed += time.Duration(dt * float64(time.Second))
	o.ticks++
	o.lastOut = out

	// Prefer the actuation the device says it applied over the local
	// controller's output, so analysis judges real saturation.
	applied := out
	if r, ok := o.plant.(plant.OutputReporter); ok {
		if v, ok := r.ReportedOutput(); ok {
			applied = v
		}
	}

	s := telemetry.NewSample(o.elapsed, o.opts.Setpoint, measured, applied)
	o.window.Record(s)
	for _, obs := range o.observers {
		obs.OnTick(s, o.pid.Gains())
	}
	return nil
}

// analyze drains the window and runs one timeout-bounded advisory
// attempt. A failed attempt consumes the round and returns to
// collecting; the control loop is never stalled by the advisor.
func (o *Orchestrator) analyze(ctx context.Context) {
	mean := o.window.MeanAbsError()
	max := o.window.MaxAbsError()
	converged := o.window.Converged()
	samples := o.window.Drain()

	// The gains that produced this window are the candidates for "best".
	if !o.haveBest || mean < o.bestMean {
		o.best = o.pid.Gains()
		o.bestMean = mean
		o.haveBest = true
	}

	if converged {
		o.round++
		o.emitRound(Round{
			Number:       o.round,
			MeanAbsError: mean,
			MaxAbsError:  max,
			Gains:        o.pid.Gains(),
			Outcome:      OutcomeConverged,
			Rationale:    "error under threshold for the trailing window",
		})
		o.state = StateConverged
		return
	}

	o.round++

	req := advisor.Request{
		Setpoint:     o.opts.Setpoint,
		Gains:        o.pid.Gains(),
		MeanAbsError: mean,
		MaxAbsError:  max,
		Trend:        analysis.Describe(samples),
		Samples:      samples,
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.AdvisorTimeout)
	callStart := time.Now()
	text, err := o.advisor.Propose(callCtx, req)
	o.lastCall = time.Since(callStart)
	cancel()

	if err != nil {
		log.Printf("advisory round %d failed: %v", o.round, err)
		o.emitRound(Round{
			Number:       o.round,
			MeanAbsError: mean,
			MaxAbsError:  max,
			Gains:        o.pid.Gains(),
			Outcome:      OutcomeAdvisoryFailed,
			Duration:     o.lastCall,
		})
		o.state = StateCollecting
		o.lastMean, o.lastMax = mean, max
		return
	}

	o.pending = text
	o.lastMean, o.lastMax = mean, max
	o.state = StateApplying
}

// apply parses the pending advisory text and applies the proposal. An
// unparsable reply is a no-op round; a DONE verdict ends the session.
func (o *Orchestrator) apply() {
	text := o.pending
	o.pending = ""

	prop, err := advisor.ParseProposal(text, o.pid.Gains())
	if err != nil {
		log.Printf("advisory round %d unparsable: %v", o.round, err)
		o.emitRound(Round{
			Number:       o.round,
			MeanAbsError: o.lastMean,
			MaxAbsError:  o.lastMax,
			Gains:        o.pid.Gains(),
			Outcome:      OutcomeUnparsable,
			Duration:     o.lastCall,
		})
		o.state = StateCollecting
		return
	}

	next := limitGains(o.pid.Gains(), prop.Gains, o.opts.MaxGainChange)
	if err := o.pid.SetGains(next); err != nil {
		// ParseProposal already validated; a failure here means the
		// change limiter produced something unusable.
		log.Printf("advisory round %d rejected gains: %v", o.round, err)
		o.emitRound(Round{
			Number:       o.round,
			MeanAbsError: o.lastMean,
			MaxAbsError:  o.lastMax,
			Gains:        o.pid.Gains(),
			Outcome:      OutcomeUnparsable,
			Duration:     o.lastCall,
		})
		o.state = StateCollecting
		return
	}

	if prop.Status == advisor.StatusConverged {
		o.emitRound(Round{
			Number:       o.round,
			MeanAbsError: o.lastMean,
			MaxAbsError:  o.lastMax,
			Gains:        next,
			Outcome:      OutcomeConverged,
			Rationale:    prop.Rationale,
			Duration:     o.lastCall,
		})
		o.state = StateConverged
		return
	}

	o.emitRound(Round{
		Number:       o.round,
		MeanAbsError: o.lastMean,
		MaxAbsError:  o.lastMax,
		Gains:        next,
		Outcome:      OutcomeApplied,
		Rationale:    prop.Rationale,
		Duration:     o.lastCall,
	})
	o.state = StateCollecting
}

// roundLimitHit reports whether the session should abort on its round
// budget: the loop is heading back to collecting with no rounds left.
func (o *Orchestrator) roundLimitHit() bool {
	return o.state == StateCollecting && o.round >= o.opts.MaxRounds
}

func (o *Orchestrator) emitRound(r Round) {
	for _, obs := range o.observers {
		obs.OnRound(r)
	}
}

func (o *Orchestrator) finish(start time.Time) Report {
	rep := Report{
		State:       o.state,
		Rounds:      o.round,
		Ticks:       o.ticks,
		Elapsed:     time.Since(start),
		FinalGains:  o.pid.Gains(),
		BestGains:   o.best,
		BestMeanErr: o.bestMean,
		HaveBest:    o.haveBest,
	}
	for _, obs := range o.observers {
		obs.OnFinish(rep)
	}
	return rep
}

// limitGains clamps each proposed coefficient to within maxChange
// fraction of its current value, so one advisory round cannot slam the
// controller. A zero current coefficient passes the proposal through
// unchanged; a zero maxChange disables limiting.
func limitGains(current, proposed control.Gains, maxChange float64) control.Gains {
	if maxChange <= 0 {
		return proposed
	}
	limit := func(cur, next float64) float64 {
		if cur == 0 {
			return next
		}
		lo := cur * (1 - maxChange)
		hi := cur * (1 + maxChange)
		if next < lo {
			return lo
		}
		if next > hi {
			return hi
		}
		return next
	}
	return control.Gains{
		Kp: limit(current.Kp, proposed.Kp),
		Ki: limit(current.Ki, proposed.Ki),
		Kd: limit(current.Kd, proposed.Kd),
	}
}
