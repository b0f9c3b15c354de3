package telemetry

import (
	"fmt"
	"math"
)

// Window is a fixed-capacity rolling buffer of samples. It signals ready
// for analysis once full, or earlier once the trailing convergenceSize
// samples are all under the error threshold. The convergence check runs on
// a sub-window smaller than the capacity so a brief transient dip cannot
// falsely declare convergence.
type Window struct {
	capacity        int
	analysisSize    int
	convergenceSize int
	threshold       float64

	samples []Sample
}

func NewWindow(capacity, analysisSize, convergenceSize int, threshold float64) (*Window, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("telemetry: capacity must be positive, got %d", capacity)
	}
	if analysisSize <= 0 || analysisSize > capacity {
		return nil, fmt.Errorf("telemetry: analysis size must be in [1,%d], got %d", capacity, analysisSize)
	}
	if convergenceSize <= 0 || convergenceSize > capacity {
		return nil, fmt.Errorf("telemetry: convergence size must be in [1,%d], got %d", capacity, convergenceSize)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("telemetry: threshold must be positive, got %g", threshold)
	}
	return &Window{
		capacity:        capacity,
		analysisSize:    analysisSize,
		convergenceSize: convergenceSize,
		threshold:       threshold,
		samples:         make([]Sample, 0, capacity),
	}, nil
}

// Record appends a sample, evicting the oldest once at capacity.
func (w *Window) Record(s Sample) {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.capacity-1]
	}
	w.samples = append(w.samples, s)
}

func (w *Window) Len() int { return len(w.samples) }

// Ready reports whether the window should be handed to analysis: either
// full, or already converged.
func (w *Window) Ready() bool {
	return len(w.samples) == w.capacity || w.Converged()
}

// Converged reports whether the trailing convergenceSize samples all sit
// under the error threshold. Requires that many consecutive samples; a
// single dip does not count.
func (w *Window) Converged() bool {
	if len(w.samples) < w.convergenceSize {
		return false
	}
	for _, s := range w.samples[len(w.samples)-w.convergenceSize:] {
		if math.Abs(s.Error) >= w.threshold {
			return false
		}
	}
	return true
}

// Drain returns the most recent analysisSize samples (fewer if the window
// holds fewer) and empties the window.
func (w *Window) Drain() []Sample {
	start := 0
	if len(w.samples) > w.analysisSize {
		start = len(w.samples) - w.analysisSize
	}
	out := make([]Sample, len(w.samples)-start)
	copy(out, w.samples[start:])
	w.samples = w.samples[:0]
	return out
}

// MeanAbsError is the mean |error| over the buffered samples.
func (w *Window) MeanAbsError() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range w.samples {
		sum += math.Abs(s.Error)
	}
	return sum / float64(len(w.samples))
}

// MaxAbsError is the largest |error| over the buffered samples.
func (w *Window) MaxAbsError() float64 {
	max := 0.0
	for _, s := range w.samples {
		if v := math.Abs(s.Error); v > max {
			max = v
		}
	}
	return max
}

// Threshold returns the convergence error threshold.
func (w *Window) Threshold() float64 { return w.threshold }
