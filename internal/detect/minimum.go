package detect

import (
	"fmt"
	"math"
)

// MinimumSearch returns the index and frequency of the smallest amplitude
// in the series. For this class of cavity the resonance is a dip, so the
// global minimum is the simplest estimator. It fails only on empty or
// mismatched input; on a flat or noise-only trace it still returns some
// frequency, so it cannot by itself signal "no real resonance".
func MinimumSearch(freqs, amps []float64) (int, float64, error) {
	if len(freqs) == 0 {
		return 0, 0, fmt.Errorf("minimum search on empty series")
	}
	if len(freqs) != len(amps) {
		return 0, 0, fmt.Errorf("minimum search length mismatch: %d frequencies, %d amplitudes", len(freqs), len(amps))
	}

	best := 0
	bestVal := math.Inf(1)
	for i, v := range amps {
		if math.IsNaN(v) {
			continue
		}
		if v < bestVal {
			bestVal = v
			best = i
		}
	}
	if math.IsInf(bestVal, 1) {
		return 0, 0, fmt.Errorf("minimum search found no finite amplitude")
	}
	return best, freqs[best], nil
}
