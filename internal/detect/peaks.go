package detect

import (
	"fmt"
	"math"
	"sort"
)

// Peak is one candidate from the inverted-peak search, in original
// (un-negated) amplitude terms: the candidate is a local amplitude
// minimum whose Prominence says how far it stands out from its
// surroundings.
type Peak struct {
	Index       int     `json:"index"`
	FrequencyHz float64 `json:"frequency_hz"`
	Amplitude   float64 `json:"amplitude"`
	Prominence  float64 `json:"prominence"`
}

// FindInvertedPeaks negates the amplitude series and searches for strict
// local maxima: a point qualifies when it is strictly greater than every
// other point within neighborhood indices on both sides. Endpoints never
// qualify. Candidates are then measured for topographic prominence and
// those below minProminence are dropped.
//
// This cross-checks the plain minimum search: on a clean dip both agree,
// on a shallow or noisy dip they may legitimately differ.
func FindInvertedPeaks(freqs, amps []float64, neighborhood int, minProminence float64) ([]Peak, error) {
	if len(freqs) != len(amps) {
		return nil, fmt.Errorf("peak search length mismatch: %d frequencies, %d amplitudes", len(freqs), len(amps))
	}
	if len(amps) < 3 {
		return nil, fmt.Errorf("peak search needs at least 3 samples, got %d", len(amps))
	}
	if neighborhood < 1 {
		neighborhood = 1
	}

	inverted := make([]float64, len(amps))
	scale := 0.0
	for i, v := range amps {
		inverted[i] = -v
		if a := math.Abs(v); a > scale {
			scale = a
		}
	}

	// Sub-ulp ripple left by the smoothing solve must not register as a
	// peak: a candidate has to stand out by more than float noise at the
	// signal's magnitude.
	if floor := 1e-12 * scale; minProminence < floor {
		minProminence = floor
	}

	var peaks []Peak
	for i := 1; i < len(inverted)-1; i++ {
		if !strictLocalMax(inverted, i, neighborhood) {
			continue
		}
		prom := prominence(inverted, i)
		if prom < minProminence {
			continue
		}
		peaks = append(peaks, Peak{
			Index:       i,
			FrequencyHz: freqs[i],
			Amplitude:   amps[i],
			Prominence:  prom,
		})
	}
	return peaks, nil
}

// SelectPeak picks the winning candidate: most prominent first, ties
// broken by proximity to hintHz (the minimum-search estimate), then by
// lower index. Returns false when no candidate exists.
func SelectPeak(peaks []Peak, hintHz float64) (Peak, bool) {
	if len(peaks) == 0 {
		return Peak{}, false
	}
	ranked := make([]Peak, len(peaks))
	copy(ranked, peaks)
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Prominence != ranked[b].Prominence {
			return ranked[a].Prominence > ranked[b].Prominence
		}
		da := math.Abs(ranked[a].FrequencyHz - hintHz)
		db := math.Abs(ranked[b].FrequencyHz - hintHz)
		if da != db {
			return da < db
		}
		return ranked[a].Index < ranked[b].Index
	})
	return ranked[0], true
}

// strictLocalMax reports whether y[i] strictly exceeds every other value
// within nb indices of i.
func strictLocalMax(y []float64, i, nb int) bool {
	lo := i - nb
	if lo < 0 {
		lo = 0
	}
	hi := i + nb
	if hi > len(y)-1 {
		hi = len(y) - 1
	}
	for j := lo; j <= hi; j++ {
		if j == i {
			continue
		}
		if y[j] >= y[i] {
			return false
		}
	}
	return true
}

// prominence measures how far the peak at i rises above the higher of
// the two valley floors separating it from taller terrain: walk outward
// in each direction until a strictly higher point (or the boundary),
// track the lowest value crossed, and take peak minus the higher base.
func prominence(y []float64, i int) float64 {
	leftBase := y[i]
	for j := i - 1; j >= 0; j-- {
		if y[j] > y[i] {
			break
		}
		if y[j] < leftBase {
			leftBase = y[j]
		}
	}

	rightBase := y[i]
	for j := i + 1; j < len(y); j++ {
		if y[j] > y[i] {
			break
		}
		if y[j] < rightBase {
			rightBase = y[j]
		}
	}

	return y[i] - math.Max(leftBase, rightBase)
}
