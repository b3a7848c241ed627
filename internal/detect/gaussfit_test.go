package detect

import (
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/resonance.report/internal/testutil"
)

func gaussianDip(n int, startHz, stepHz, baseline, depth, centerHz, sigmaHz float64) (freqs, amps []float64) {
	freqs = make([]float64, n)
	amps = make([]float64, n)
	for i := range freqs {
		f := startHz + float64(i)*stepHz
		freqs[i] = f
		df := f - centerHz
		amps[i] = baseline - depth*math.Exp(-df*df/(2*sigmaHz*sigmaHz))
	}
	return freqs, amps
}

func TestFitNegativeGaussian_RecoversParameters(t *testing.T) {
	const (
		baseline = 1.0
		depth    = 0.6
		center   = 2.005e9
		sigma    = 1.5e6
	)
	freqs, amps := gaussianDip(101, 2.000e9, 1e5, baseline, depth, center, sigma)

	fit, err := FitNegativeGaussian(freqs, amps, center, FitOptions{})
	if err != nil {
		t.Fatalf("FitNegativeGaussian: %v", err)
	}

	// Center within one frequency step; depth and width within 5%.
	testutil.AssertInDelta(t, fit.CenterHz, center, 1e5)
	testutil.AssertInRelative(t, fit.Depth, depth, 0.05)
	testutil.AssertInRelative(t, fit.SigmaHz, sigma, 0.05)
	testutil.AssertInRelative(t, fit.Baseline, baseline, 0.05)
	if fit.Evaluations <= 0 {
		t.Error("Evaluations not recorded")
	}
}

func TestFitNegativeGaussian_SparseTrace(t *testing.T) {
	// The end-to-end acquisition case: 11 points across 10 MHz with a
	// 2 MHz-wide dip. Four parameters against eleven samples still
	// converges on noiseless data.
	freqs, amps := gaussianDip(11, 2.000e9, 1e6, 1.0, 0.6, 2.005e9, 2e6)

	fit, err := FitNegativeGaussian(freqs, amps, 2.005e9, FitOptions{})
	if err != nil {
		t.Fatalf("FitNegativeGaussian: %v", err)
	}
	testutil.AssertInDelta(t, fit.CenterHz, 2.005e9, 1e6)
	testutil.AssertInRelative(t, fit.Depth, 0.6, 0.05)
	testutil.AssertInRelative(t, fit.SigmaHz, 2e6, 0.05)
}

func TestFitNegativeGaussian_FlatTraceFails(t *testing.T) {
	freqs, amps := gaussianDip(50, 2.000e9, 1e6, 1.0, 0, 2.005e9, 1e6)

	fit, err := FitNegativeGaussian(freqs, amps, 2.005e9, FitOptions{})
	if err == nil {
		t.Fatalf("Expected failure on flat trace, got fit %+v", fit)
	}
	if !strings.Contains(err.Error(), "depth") {
		t.Errorf("Diagnostic %q should name the non-positive depth", err)
	}
}

func TestFitNegativeGaussian_HintOutsideSpanFallsBack(t *testing.T) {
	freqs, amps := gaussianDip(101, 2.000e9, 1e5, 1.0, 0.6, 2.005e9, 1.5e6)

	fit, err := FitNegativeGaussian(freqs, amps, -1, FitOptions{})
	if err != nil {
		t.Fatalf("FitNegativeGaussian: %v", err)
	}
	testutil.AssertInDelta(t, fit.CenterHz, 2.005e9, 1e5)
}

func TestFitNegativeGaussian_Validation(t *testing.T) {
	testCases := []struct {
		name  string
		freqs []float64
		amps  []float64
	}{
		{"length_mismatch", []float64{1, 2, 3, 4}, []float64{1, 2, 3}},
		{"too_few_samples", []float64{1, 2, 3}, []float64{1, 2, 3}},
		{"zero_span", []float64{5, 5, 5, 5}, []float64{1, 2, 3, 4}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FitNegativeGaussian(tc.freqs, tc.amps, 0, FitOptions{}); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestFitParamsEval(t *testing.T) {
	p := &FitParams{Baseline: 1.0, Depth: 0.5, CenterHz: 1775e6, SigmaHz: 2e6}

	testutil.AssertInDelta(t, p.Eval(1775e6), 0.5, 1e-12)
	// One sigma out the dip recovers to baseline - depth*exp(-1/2).
	testutil.AssertInDelta(t, p.Eval(1777e6), 1.0-0.5*math.Exp(-0.5), 1e-12)
	// Far from the center the model is flat at the baseline.
	testutil.AssertInDelta(t, p.Eval(1900e6), 1.0, 1e-9)
}

func TestNormalizeFitOptions(t *testing.T) {
	opts := normalizeFitOptions(FitOptions{})
	if opts.SigmaFraction != defaultSigmaFraction {
		t.Errorf("SigmaFraction = %g, want %g", opts.SigmaFraction, defaultSigmaFraction)
	}
	if opts.MaxIterations != defaultMaxFitIterations {
		t.Errorf("MaxIterations = %d, want %d", opts.MaxIterations, defaultMaxFitIterations)
	}
	if opts.MaxEvaluations != defaultMaxFitEvaluations {
		t.Errorf("MaxEvaluations = %d, want %d", opts.MaxEvaluations, defaultMaxFitEvaluations)
	}

	custom := normalizeFitOptions(FitOptions{MaxIterations: 7})
	if custom.MaxIterations != 7 {
		t.Errorf("Custom MaxIterations = %d, want 7", custom.MaxIterations)
	}
}
