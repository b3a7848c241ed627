package detect

import (
	"math"
	"testing"
)

func TestMinimumSearch(t *testing.T) {
	freqs := []float64{2.000e9, 2.001e9, 2.002e9, 2.003e9, 2.004e9}
	amps := []float64{0.9, 0.7, 0.2, 0.8, 0.95}

	idx, freq, err := MinimumSearch(freqs, amps)
	if err != nil {
		t.Fatalf("MinimumSearch: %v", err)
	}
	if idx != 2 {
		t.Errorf("Index = %d, want 2", idx)
	}
	if freq != 2.002e9 {
		t.Errorf("Frequency = %g, want %g", freq, 2.002e9)
	}
}

func TestMinimumSearch_FlatSeriesStillReturns(t *testing.T) {
	// On a flat trace the minimum search cannot signal "no resonance";
	// it returns the first sample. That is the documented limitation
	// that makes the cross-check methods worthwhile.
	freqs := []float64{1, 2, 3, 4}
	amps := []float64{0.5, 0.5, 0.5, 0.5}

	idx, freq, err := MinimumSearch(freqs, amps)
	if err != nil {
		t.Fatalf("MinimumSearch: %v", err)
	}
	if idx != 0 || freq != 1 {
		t.Errorf("Got index %d frequency %g, want 0 and 1", idx, freq)
	}
}

func TestMinimumSearch_SkipsNaN(t *testing.T) {
	freqs := []float64{1, 2, 3}
	amps := []float64{math.NaN(), 0.4, 0.6}

	idx, _, err := MinimumSearch(freqs, amps)
	if err != nil {
		t.Fatalf("MinimumSearch: %v", err)
	}
	if idx != 1 {
		t.Errorf("Index = %d, want 1", idx)
	}
}

func TestMinimumSearch_Errors(t *testing.T) {
	if _, _, err := MinimumSearch(nil, nil); err == nil {
		t.Error("Expected error for empty series")
	}
	if _, _, err := MinimumSearch([]float64{1, 2}, []float64{1}); err == nil {
		t.Error("Expected error for length mismatch")
	}
	if _, _, err := MinimumSearch([]float64{1, 2}, []float64{math.NaN(), math.NaN()}); err == nil {
		t.Error("Expected error for all-NaN series")
	}
}
