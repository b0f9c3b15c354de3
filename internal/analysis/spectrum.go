// Package analysis computes telemetry summaries for tuning decisions:
// error trend, oscillation detection, and step-response identification.
package analysis

import (
	"math"
	"math/cmplx"
)

func fft(data []float64) []complex128 {
	n := len(data)
	if n <= 1 {
		result := make([]complex128, n)
		for i := range data {
			result[i] = complex(data[i], 0)
		}
		return result
	}

	even := make([]float64, n/2)
	odd := make([]float64, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = data[2*i]
		odd[i] = data[2*i+1]
	}

	feven := fft(even)
	fodd := fft(odd)

	result := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		w := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n)))
		result[k] = feven[k] + w*fodd[k]
		result[k+n/2] = feven[k] - w*fodd[k]
	}
	return result
}

// PowerSpectrum returns magnitude per frequency bin for the first half of
// the spectrum. The input is zero-padded to a power of two.
func PowerSpectrum(data []float64) []float64 {
	n := 1
	for n < len(data) {
		n *= 2
	}
	padded := make([]float64, n)
	copy(padded, data)

	out := fft(padded)
	ps := make([]float64, len(out)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(out[i])
	}
	return ps
}

// DominantFrequency finds the strongest non-DC component. sampleRate is in
// samples per second; the returned strength is that component's share of
// total non-DC spectral mass, in [0,1].
func DominantFrequency(data []float64, sampleRate float64) (freqHz, strength float64) {
	if len(data) < 4 || sampleRate <= 0 {
		return 0, 0
	}

	ps := PowerSpectrum(data)
	if len(ps) < 2 {
		return 0, 0
	}

	total := 0.0
	maxPower := 0.0
	maxIdx := 0
	for i := 1; i < len(ps); i++ {
		total += ps[i]
		if ps[i] > maxPower {
			maxPower = ps[i]
			maxIdx = i
		}
	}
	if total == 0 {
		return 0, 0
	}

	// Bin width: sampleRate / fftSize, where fftSize = 2*len(ps).
	freqHz = float64(maxIdx) * sampleRate / float64(2*len(ps))
	return freqHz, maxPower / total
}
