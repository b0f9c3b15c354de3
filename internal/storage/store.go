package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
	"github.com/kingston115/pidtune/internal/tune"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type SessionMetadata struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Setpoint    float64       `json:"setpoint"`
	Interval    float64       `json:"interval_s"`
	State       string        `json:"state"`
	Rounds      []tune.Round  `json:"rounds"`
	Ticks       int           `json:"ticks"`
	FinalGains  control.Gains `json:"final_gains"`
	BestGains   control.Gains `json:"best_gains"`
	BestMeanErr float64       `json:"best_mean_error"`
}

// Record pairs a sample with the gains that were active when it was
// taken, so a stored session can be replayed gain change by gain change.
type Record struct {
	Sample telemetry.Sample
	Gains  control.Gains
}

func (s *Store) Save(setpoint float64, interval time.Duration, rep tune.Report, rounds []tune.Round, records []Record) (string, error) {
	sessionID := fmt.Sprintf("session_%d", time.Now().Unix())
	sessionDir := filepath.Join(s.baseDir, sessionID)

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return "", err
	}

	meta := SessionMetadata{
		ID:          sessionID,
		Timestamp:   time.Now(),
		Setpoint:    setpoint,
		Interval:    interval.Seconds(),
		State:       rep.State.String(),
		Rounds:      rounds,
		Ticks:       rep.Ticks,
		FinalGains:  rep.FinalGains,
		BestGains:   rep.BestGains,
		BestMeanErr: rep.BestMeanErr,
	}

	metaFile, err := os.Create(filepath.Join(sessionDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(sessionDir, "samples.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	header := []string{"elapsed_s", "setpoint", "measured", "output", "error", "kp", "ki", "kd"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, r := range records {
		row := []string{
			strconv.FormatFloat(r.Sample.Elapsed.Seconds(), 'f', 3, 64),
			strconv.FormatFloat(r.Sample.Setpoint, 'f', 2, 64),
			strconv.FormatFloat(r.Sample.Measured, 'f', 2, 64),
			strconv.FormatFloat(r.Sample.Output, 'f', 2, 64),
			strconv.FormatFloat(r.Sample.Error, 'f', 2, 64),
			strconv.FormatFloat(r.Gains.Kp, 'f', 4, 64),
			strconv.FormatFloat(r.Gains.Ki, 'f', 4, 64),
			strconv.FormatFloat(r.Gains.Kd, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return sessionID, nil
}

func (s *Store) List() ([]SessionMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SessionMetadata{}, nil
		}
		return nil, err
	}

	sessions := make([]SessionMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}

		var meta SessionMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		sessions = append(sessions, meta)
	}

	return sessions, nil
}

func (s *Store) Load(sessionID string) (*SessionMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, sessionID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadRecords(sessionID string) ([]Record, error) {
	file, err := os.Open(filepath.Join(s.baseDir, sessionID, "samples.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < 8 {
			continue
		}

		vals := make([]float64, 0, 8)
		ok := true
		for _, field := range row[:8] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				ok = false
				break
			}
			vals = append(vals, v)
		}
		if !ok {
			continue
		}

		records = append(records, Record{
			Sample: telemetry.Sample{
				Elapsed:  time.Duration(vals[0] * float64(time.Second)),
				Setpoint: vals[1],
				Measured: vals[2],
				Output:   vals[3],
				Error:    vals[4],
			},
			Gains: control.Gains{Kp: vals[5], Ki: vals[6], Kd: vals[7]},
		})
	}

	return records, nil
}
