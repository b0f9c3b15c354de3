package storage

import (
	"encoding/json"
	"io"
	"os"
)

// ExportData is the flat JSON shape for downstream analysis tools: one
// parallel array per telemetry column plus the session metadata.
type ExportData struct {
	Session  SessionMetadata `json:"session"`
	Elapsed  []float64       `json:"elapsed_s"`
	Setpoint []float64       `json:"setpoint"`
	Measured []float64       `json:"measured"`
	Output   []float64       `json:"output"`
	Error    []float64       `json:"error"`
}

func buildExport(meta SessionMetadata, records []Record) ExportData {
	data := ExportData{
		Session:  meta,
		Elapsed:  make([]float64, len(records)),
		Setpoint: make([]float64, len(records)),
		Measured: make([]float64, len(records)),
		Output:   make([]float64, len(records)),
		Error:    make([]float64, len(records)),
	}
	for i, r := range records {
		data.Elapsed[i] = r.Sample.Elapsed.Seconds()
		data.Setpoint[i] = r.Sample.Setpoint
		data.Measured[i] = r.Sample.Measured
		data.Output[i] = r.Sample.Output
		data.Error[i] = r.Sample.Error
	}
	return data
}

// ExportJSON writes a stored session as indented JSON. An empty path
// writes to stdout.
func (s *Store) ExportJSON(sessionID, path string) error {
	meta, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	records, err := s.LoadRecords(sessionID)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(buildExport(*meta, records))
}
