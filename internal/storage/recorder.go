package storage

import (
	"time"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
	"github.com/kingston115/pidtune/internal/tune"
)

// Recorder buffers a whole session in memory so it can be persisted
// after the run. It hangs off the orchestrator as an observer.
type Recorder struct {
	records []Record
	rounds  []tune.Round
	report  tune.Report
	done    bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnTick(s telemetry.Sample, g control.Gains) {
	r.records = append(r.records, Record{Sample: s, Gains: g})
}

func (r *Recorder) OnRound(rd tune.Round) {
	r.rounds = append(r.rounds, rd)
}

func (r *Recorder) OnFinish(rep tune.Report) {
	r.report = rep
	r.done = true
}

func (r *Recorder) Records() []Record    { return r.records }
func (r *Recorder) Rounds() []tune.Round { return r.rounds }

// Persist writes the recorded session to the store. Call after the
// orchestrator has finished.
func (r *Recorder) Persist(s *Store, setpoint float64, interval time.Duration) (string, error) {
	return s.Save(setpoint, interval, r.report, r.rounds, r.records)
}
