// Package detect extracts the cavity resonance frequency from a
// finalized sweep trace. Three independent methods run on every trace: a
// plain minimum search and an inverted-peak search over a
// Savitzky-Golay-smoothed copy, and a negative-Gaussian fit against the
// raw samples. Each method fails in isolation; the run fails as a whole
// only when the trace is unusable or every method comes up empty.
package detect

import (
	"errors"
	"fmt"

	"github.com/banshee-data/resonance.report/internal/monitoring"
	"github.com/banshee-data/resonance.report/internal/sweep"
	"github.com/banshee-data/resonance.report/internal/units"
)

const (
	MethodMinimum      = "minimum"
	MethodInvertedPeak = "inverted_peak"
	MethodGaussianFit  = "gaussian_fit"
)

const (
	DefaultSmoothingWindow  = 51
	DefaultSmoothingOrder   = 3
	DefaultMinUsableSamples = 10
)

var (
	// ErrInsufficientData means too few usable (non-error) samples
	// remained for any method to run. It is a run-level condition, not a
	// per-method failure.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoResonanceFound means every method ran and none produced a
	// frequency. Distinct from per-method failure so callers can fall
	// back to showing the raw trace.
	ErrNoResonanceFound = errors.New("no resonance found")
)

// Config tunes the detector. Zero values take the defaults.
type Config struct {
	// SmoothingWindow and SmoothingOrder parameterize the
	// Savitzky-Golay pass. The window is clamped to the usable sample
	// count (and forced odd) for short traces.
	SmoothingWindow int
	SmoothingOrder  int

	// PeakNeighborhood is the half-width, in samples, a candidate must
	// dominate in the inverted-peak search. Zero means a tenth of the
	// usable sample count.
	PeakNeighborhood int

	// MinProminence drops inverted-peak candidates that do not stand out
	// at least this far from their surroundings. Zero keeps all strict
	// local maxima.
	MinProminence float64

	// MinUsableSamples is the run-level floor: fewer usable samples than
	// this fails the whole run with ErrInsufficientData.
	MinUsableSamples int

	Fit FitOptions

	Logf func(format string, v ...interface{})
}

// Result is one method's verdict. Every run produces one Result per
// method, never fewer, so failures stay visible.
type Result struct {
	Method      string  `json:"method"`
	Found       bool    `json:"found"`
	FrequencyHz float64 `json:"frequency_hz,omitempty"`
	Diagnostic  string  `json:"diagnostic,omitempty"`
}

// Report is the aggregated outcome of one detection run.
type Report struct {
	Results []Result `json:"results"`

	// Fit carries the recovered model parameters when the Gaussian fit
	// succeeded.
	Fit *FitParams `json:"fit,omitempty"`

	// Smoothed is the filtered amplitude series the minimum and peak
	// searches ran on, parallel to the usable samples, retained for
	// plotting alongside the raw trace.
	Smoothed []float64 `json:"-"`

	// PlotSuggested is set when the Gaussian fit failed: fit failure on
	// real data usually means a shape departure worth a human look at
	// the raw trace.
	PlotSuggested bool `json:"plot_suggested"`
}

// Successful returns the results that produced a frequency, in method
// order.
func (r *Report) Successful() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Found {
			out = append(out, res)
		}
	}
	return out
}

// Detector runs the three methods over finalized traces. Safe to reuse
// across runs; it holds no per-run state.
type Detector struct {
	cfg Config
}

// NewDetector applies defaults and returns a ready detector.
func NewDetector(cfg Config) *Detector {
	if cfg.SmoothingWindow <= 0 {
		cfg.SmoothingWindow = DefaultSmoothingWindow
	}
	if cfg.SmoothingOrder <= 0 {
		cfg.SmoothingOrder = DefaultSmoothingOrder
	}
	if cfg.MinUsableSamples <= 0 {
		cfg.MinUsableSamples = DefaultMinUsableSamples
	}
	cfg.Fit = normalizeFitOptions(cfg.Fit)
	if cfg.Logf == nil {
		cfg.Logf = monitoring.Prefixed("detect")
	}
	return &Detector{cfg: cfg}
}

// Run produces one Result per method for the given trace. The returned
// error is ErrInsufficientData when the trace is unusable (no Report is
// produced), ErrNoResonanceFound when all methods failed (the Report
// still carries the per-method diagnostics), and nil otherwise.
func (d *Detector) Run(trace sweep.Trace) (*Report, error) {
	freqs, amps := trace.Usable()
	if len(freqs) < d.cfg.MinUsableSamples {
		return nil, fmt.Errorf("%d usable samples, need %d: %w", len(freqs), d.cfg.MinUsableSamples, ErrInsufficientData)
	}

	smoothed := d.smooth(amps)
	report := &Report{Smoothed: smoothed}

	// Method 1: global minimum of the smoothed series.
	minResult := Result{Method: MethodMinimum}
	_, minFreq, err := MinimumSearch(freqs, smoothed)
	if err != nil {
		minResult.Diagnostic = err.Error()
		d.cfg.Logf("WARNING: minimum search failed: %v", err)
	} else {
		minResult.Found = true
		minResult.FrequencyHz = minFreq
		d.cfg.Logf("minimum search: dip at %s", units.FormatHz(minFreq))
	}

	// Method 2: most prominent inverted peak, ties broken toward the
	// minimum-search estimate.
	peakResult := Result{Method: MethodInvertedPeak}
	nb := d.cfg.PeakNeighborhood
	if nb <= 0 {
		nb = len(freqs) / 10
	}
	peaks, err := FindInvertedPeaks(freqs, smoothed, nb, d.cfg.MinProminence)
	if err != nil {
		peakResult.Diagnostic = err.Error()
		d.cfg.Logf("WARNING: inverted-peak search failed: %v", err)
	} else if winner, ok := SelectPeak(peaks, minFreq); ok {
		peakResult.Found = true
		peakResult.FrequencyHz = winner.FrequencyHz
		d.cfg.Logf("inverted-peak search: dip at %s (prominence %.4g, %d candidates)",
			units.FormatHz(winner.FrequencyHz), winner.Prominence, len(peaks))
	} else {
		peakResult.Diagnostic = "no peak found"
		d.cfg.Logf("WARNING: inverted-peak search: no peak found")
	}

	// Method 3: negative-Gaussian fit on the raw series, seeded by the
	// simpler estimators.
	fitResult := Result{Method: MethodGaussianFit}
	hint := minFreq
	if peakResult.Found {
		hint = peakResult.FrequencyHz
	}
	fitted, err := FitNegativeGaussian(freqs, amps, hint, d.cfg.Fit)
	if err != nil {
		fitResult.Diagnostic = err.Error()
		report.PlotSuggested = true
		d.cfg.Logf("WARNING: gaussian fit failed: %v; raw-trace inspection suggested", err)
	} else {
		fitResult.Found = true
		fitResult.FrequencyHz = fitted.CenterHz
		report.Fit = fitted
		d.cfg.Logf("gaussian fit: center %s, width %s, depth %.4g (%d evaluations)",
			units.FormatHz(fitted.CenterHz), units.FormatHz(fitted.SigmaHz), fitted.Depth, fitted.Evaluations)
	}

	report.Results = []Result{minResult, peakResult, fitResult}
	if len(report.Successful()) == 0 {
		return report, ErrNoResonanceFound
	}
	return report, nil
}

// smooth applies the Savitzky-Golay pass, clamping the window for short
// traces. If the series cannot be smoothed at all the raw values are
// used; the searches still run.
func (d *Detector) smooth(amps []float64) []float64 {
	window := d.cfg.SmoothingWindow
	if window > len(amps) {
		window = len(amps)
	}
	if window%2 == 0 {
		window--
	}
	if window < 3 {
		d.cfg.Logf("WARNING: %d samples too few to smooth; using raw series", len(amps))
		return append([]float64(nil), amps...)
	}
	order := d.cfg.SmoothingOrder
	if order >= window {
		order = window - 1
	}

	smoothed, err := SavitzkyGolay(amps, window, order)
	if err != nil {
		d.cfg.Logf("WARNING: smoothing failed (%v); using raw series", err)
		return append([]float64(nil), amps...)
	}
	if window != d.cfg.SmoothingWindow {
		d.cfg.Logf("smoothing window clamped to %d for %d samples", window, len(amps))
	}
	return smoothed
}
