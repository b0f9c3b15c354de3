package analysis

import (
	"fmt"
	"math"

	"github.com/kingston115/pidtune/internal/telemetry"
)

// oscillationShare above which the error signal counts as oscillating
// rather than drifting. Spectral leakage spreads even a clean tone across
// neighboring bins, so the bar sits well below 1.
const oscillationShare = 0.25

// ErrorSlope fits error against elapsed time by least squares and returns
// the slope in error units per second. Needs at least two samples.
func ErrorSlope(samples []telemetry.Sample) float64 {
	if len(samples) < 2 {
		return 0
	}

	var sumT, sumE, sumTT, sumTE float64
	for _, s := range samples {
		t := s.Elapsed.Seconds()
		sumT += t
		sumE += s.Error
		sumTT += t * t
		sumTE += t * s.Error
	}

	n := float64(len(samples))
	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		return 0
	}
	return (n*sumTE - sumT*sumE) / denom
}

// Describe renders a one-line trend summary for the advisory request:
// whether the error is shrinking, growing or flat, and whether it
// oscillates at a dominant frequency.
func Describe(samples []telemetry.Sample) string {
	if len(samples) < 2 {
		return ""
	}

	slope := ErrorSlope(samples)
	var direction string
	switch {
	case slope < -0.05:
		direction = fmt.Sprintf("error shrinking at %.2f/s", -slope)
	case slope > 0.05:
		direction = fmt.Sprintf("error growing at %.2f/s", slope)
	default:
		direction = "error roughly flat"
	}

	span := samples[len(samples)-1].Elapsed - samples[0].Elapsed
	if span <= 0 {
		return direction
	}
	rate := float64(len(samples)-1) / span.Seconds()

	errs := make([]float64, len(samples))
	mean := 0.0
	for i, s := range samples {
		errs[i] = s.Error
		mean += s.Error
	}
	mean /= float64(len(errs))
	for i := range errs {
		errs[i] -= mean // remove DC so the spectrum sees only movement
	}

	freq, strength := DominantFrequency(errs, rate)
	if strength > oscillationShare && freq > 0 && !math.IsNaN(freq) {
		return fmt.Sprintf("%s, oscillating near %.2f Hz", direction, freq)
	}
	return direction
}
