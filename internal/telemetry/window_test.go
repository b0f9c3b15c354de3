package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWithError(e float64) Sample {
	return NewSample(0, 100, 100-e, 0)
}

func TestWindow_ReadyWhenFull(t *testing.T) {
	w, err := NewWindow(5, 5, 3, 0.5)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		w.Record(sampleWithError(10))
		assert.False(t, w.Ready())
	}
	w.Record(sampleWithError(10))
	assert.True(t, w.Ready())
}

func TestWindow_ConvergenceNeedsConsecutiveSamples(t *testing.T) {
	w, err := NewWindow(25, 10, 3, 0.5)
	require.NoError(t, err)

	w.Record(sampleWithError(0.1))
	w.Record(sampleWithError(0.1))
	assert.False(t, w.Converged(), "two samples under threshold are not enough")

	w.Record(sampleWithError(0.1))
	assert.True(t, w.Converged())
}

func TestWindow_SingleDipDoesNotConverge(t *testing.T) {
	w, err := NewWindow(25, 10, 3, 0.5)
	require.NoError(t, err)

	w.Record(sampleWithError(0.1))
	w.Record(sampleWithError(0.1))
	w.Record(sampleWithError(5)) // transient recovery above threshold
	w.Record(sampleWithError(0.1))
	assert.False(t, w.Converged(), "a dip followed by a sample above threshold must not converge")
	assert.False(t, w.Ready())
}

func TestWindow_DrainReturnsAnalysisTail(t *testing.T) {
	w, err := NewWindow(25, 10, 5, 0.5)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		w.Record(NewSample(time.Duration(i)*50*time.Millisecond, 100, float64(i), 0))
	}

	got := w.Drain()
	require.Len(t, got, 10)
	assert.Equal(t, 15.0, got[0].Measured, "drain keeps the most recent samples")
	assert.Equal(t, 24.0, got[9].Measured)

	assert.Zero(t, w.Len())
	assert.False(t, w.Ready(), "ready must be false right after drain")
	assert.Zero(t, w.MeanAbsError())
}

func TestWindow_DrainShortWindow(t *testing.T) {
	w, err := NewWindow(25, 10, 5, 0.5)
	require.NoError(t, err)

	w.Record(sampleWithError(1))
	w.Record(sampleWithError(2))
	got := w.Drain()
	assert.Len(t, got, 2)
}

func TestWindow_EvictsOldestAtCapacity(t *testing.T) {
	w, err := NewWindow(3, 3, 2, 0.5)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		w.Record(NewSample(0, 100, float64(i), 0))
	}
	assert.Equal(t, 3, w.Len())
	got := w.Drain()
	assert.Equal(t, 2.0, got[0].Measured)
	assert.Equal(t, 4.0, got[2].Measured)
}

func TestWindow_ErrorStats(t *testing.T) {
	w, err := NewWindow(10, 10, 3, 0.5)
	require.NoError(t, err)

	w.Record(sampleWithError(2))
	w.Record(sampleWithError(-4))
	w.Record(sampleWithError(6))

	assert.InDelta(t, 4.0, w.MeanAbsError(), 1e-9)
	assert.InDelta(t, 6.0, w.MaxAbsError(), 1e-9)
}

func TestNewWindow_RejectsBadSizes(t *testing.T) {
	_, err := NewWindow(0, 1, 1, 0.5)
	assert.Error(t, err)
	_, err = NewWindow(10, 11, 5, 0.5)
	assert.Error(t, err)
	_, err = NewWindow(10, 5, 0, 0.5)
	assert.Error(t, err)
	_, err = NewWindow(10, 5, 5, 0)
	assert.Error(t, err)
}
