package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
	"github.com/kingston115/pidtune/internal/tune"
)

func testSession() (tune.Report, []tune.Round, []Record) {
	gains := control.Gains{Kp: 2.0, Ki: 0.5, Kd: 0.05}
	rep := tune.Report{
		State:       tune.StateConverged,
		Rounds:      3,
		Ticks:       2,
		FinalGains:  gains,
		BestGains:   gains,
		BestMeanErr: 1.2,
		HaveBest:    true,
	}
	rounds := []tune.Round{
		{Number: 1, MeanAbsError: 40, Gains: gains, Outcome: tune.OutcomeApplied},
		{Number: 2, MeanAbsError: 1.2, Gains: gains, Outcome: tune.OutcomeConverged},
	}
	records := []Record{
		{Sample: telemetry.NewSample(50*time.Millisecond, 100, 60, 255), Gains: gains},
		{Sample: telemetry.NewSample(100*time.Millisecond, 100, 99, 120), Gains: gains},
	}
	return rep, rounds, records
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	rep, rounds, records := testSession()
	id, err := st.Save(100, 50*time.Millisecond, rep, rounds, records)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if id == "" {
		t.Error("expected non-empty session id")
	}

	meta, err := st.Load(id)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.State != "CONVERGED" {
		t.Errorf("expected state CONVERGED, got %s", meta.State)
	}
	if meta.Setpoint != 100 {
		t.Errorf("expected setpoint 100, got %f", meta.Setpoint)
	}
	if len(meta.Rounds) != 2 {
		t.Errorf("expected 2 rounds, got %d", len(meta.Rounds))
	}
	if meta.FinalGains.Kp != 2.0 {
		t.Errorf("expected final kp 2.0, got %f", meta.FinalGains.Kp)
	}

	loaded, err := st.LoadRecords(id)
	if err != nil {
		t.Fatalf("load records failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(loaded))
	}
	if loaded[0].Sample.Measured != 60 {
		t.Errorf("expected measured 60, got %f", loaded[0].Sample.Measured)
	}
	if loaded[1].Gains.Ki != 0.5 {
		t.Errorf("expected ki 0.5, got %f", loaded[1].Gains.Ki)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	sessions, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected 0 sessions, got %d", len(sessions))
	}

	rep, rounds, records := testSession()
	if _, err := st.Save(100, 50*time.Millisecond, rep, rounds, records); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sessions, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	rep, rounds, records := testSession()
	id, err := st.Save(100, 50*time.Millisecond, rep, rounds, records)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, name := range []string{"metadata.json", "samples.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, id, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	gains := control.Gains{Kp: 1, Ki: 0.1, Kd: 0.05}

	rec.OnTick(telemetry.NewSample(50*time.Millisecond, 100, 60, 255), gains)
	rec.OnTick(telemetry.NewSample(100*time.Millisecond, 100, 70, 255), gains)
	rec.OnRound(tune.Round{Number: 1, Outcome: tune.OutcomeApplied})
	rec.OnFinish(tune.Report{State: tune.StateAborted, Ticks: 2})

	if len(rec.Records()) != 2 {
		t.Errorf("expected 2 records, got %d", len(rec.Records()))
	}
	if len(rec.Rounds()) != 1 {
		t.Errorf("expected 1 round, got %d", len(rec.Rounds()))
	}

	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	id, err := rec.Persist(st, 100, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	meta, err := st.Load(id)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.State != "ABORTED" {
		t.Errorf("expected state ABORTED, got %s", meta.State)
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	rep, rounds, records := testSession()
	id, err := st.Save(100, 50*time.Millisecond, rep, rounds, records)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "export.json")
	if err := st.ExportJSON(id, outPath); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read export failed: %v", err)
	}
	var exported ExportData
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("unmarshal export failed: %v", err)
	}
	if len(exported.Measured) != 2 {
		t.Errorf("expected 2 measured values, got %d", len(exported.Measured))
	}
	if exported.Session.ID != id {
		t.Errorf("expected session id %s, got %s", id, exported.Session.ID)
	}
}
