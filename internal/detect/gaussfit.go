package detect

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// FitOptions bounds the nonlinear fit. Zero values take the defaults.
type FitOptions struct {
	// SigmaFraction is the initial width guess as a fraction of the
	// scanned span.
	SigmaFraction float64
	// MaxIterations and MaxEvaluations cap the optimizer; hitting either
	// cap is reported as non-convergence rather than silently accepted.
	MaxIterations  int
	MaxEvaluations int
	// ConvergeTolerance and ConvergeIterations define convergence: the
	// best objective value must improve by less than the tolerance over
	// that many consecutive iterations.
	ConvergeTolerance  float64
	ConvergeIterations int
}

const (
	defaultSigmaFraction      = 0.1
	defaultMaxFitIterations   = 2000
	defaultMaxFitEvaluations  = 10000
	defaultConvergeTolerance  = 1e-10
	defaultConvergeIterations = 50
)

func normalizeFitOptions(opts FitOptions) FitOptions {
	if opts.SigmaFraction <= 0 {
		opts.SigmaFraction = defaultSigmaFraction
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxFitIterations
	}
	if opts.MaxEvaluations <= 0 {
		opts.MaxEvaluations = defaultMaxFitEvaluations
	}
	if opts.ConvergeTolerance <= 0 {
		opts.ConvergeTolerance = defaultConvergeTolerance
	}
	if opts.ConvergeIterations <= 0 {
		opts.ConvergeIterations = defaultConvergeIterations
	}
	return opts
}

// FitParams are the recovered negative-Gaussian parameters:
// model(f) = Baseline - Depth * exp(-(f-CenterHz)^2 / (2*SigmaHz^2)).
type FitParams struct {
	Baseline    float64 `json:"baseline"`
	Depth       float64 `json:"depth"`
	CenterHz    float64 `json:"center_hz"`
	SigmaHz     float64 `json:"sigma_hz"`
	Residual    float64 `json:"residual"`
	Evaluations int     `json:"evaluations"`
}

// Eval evaluates the fitted model at the given frequency.
func (p *FitParams) Eval(hz float64) float64 {
	d := hz - p.CenterHz
	return p.Baseline - p.Depth*math.Exp(-(d*d)/(2*p.SigmaHz*p.SigmaHz))
}

// FitNegativeGaussian fits the dip model to the raw (unsmoothed) series
// by minimizing the sum of squared residuals with Nelder-Mead.
// centerHintHz seeds the center parameter; it comes from the minimum or
// inverted-peak search, keeping the dependency between the methods an
// explicit input rather than shared state. A hint outside the scanned
// span falls back to the argmin of the series.
//
// The fit fails (with a diagnostic, never a panic) when the optimizer
// exhausts its budget without converging or when the converged
// parameters are unphysical: non-positive depth, center outside the
// span, or width wider than the span. A flat trace lands in the
// non-positive-depth case.
func FitNegativeGaussian(freqs, amps []float64, centerHintHz float64, opts FitOptions) (*FitParams, error) {
	if len(freqs) != len(amps) {
		return nil, fmt.Errorf("fit length mismatch: %d frequencies, %d amplitudes", len(freqs), len(amps))
	}
	if len(freqs) < 4 {
		return nil, fmt.Errorf("fit needs at least 4 samples, got %d", len(freqs))
	}
	opts = normalizeFitOptions(opts)

	fmin := freqs[0]
	span := freqs[len(freqs)-1] - freqs[0]
	if span <= 0 {
		return nil, fmt.Errorf("fit needs an ascending frequency span")
	}

	// Normalize frequencies to [0,1]: raw values near 2e9 Hz against
	// widths near 1e6 Hz are too badly scaled for a direct simplex.
	x := make([]float64, len(freqs))
	for i, f := range freqs {
		x[i] = (f - fmin) / span
	}

	baseline := median(amps)
	minIdx, _, err := MinimumSearch(freqs, amps)
	if err != nil {
		return nil, err
	}
	depth := baseline - amps[minIdx]

	center := (centerHintHz - fmin) / span
	if math.IsNaN(center) || center < 0 || center > 1 {
		center = x[minIdx]
	}

	objective := func(p []float64) float64 {
		b, d, c := p[0], p[1], p[2]
		s := math.Abs(p[3])
		if s < 1e-9 {
			s = 1e-9
		}
		sse := 0.0
		for i, xi := range x {
			dx := xi - c
			r := b - d*math.Exp(-dx*dx/(2*s*s)) - amps[i]
			sse += r * r
		}
		return sse
	}

	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		FuncEvaluations: opts.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.ConvergeTolerance,
			Iterations: opts.ConvergeIterations,
		},
	}
	initial := []float64{baseline, depth, center, opts.SigmaFraction}

	result, err := optimize.Minimize(optimize.Problem{Func: objective}, initial, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	if result.Status != optimize.FunctionConvergence && result.Status != optimize.Success {
		return nil, fmt.Errorf("optimizer did not converge within budget (%s after %d evaluations)",
			result.Status, result.Stats.FuncEvaluations)
	}

	fitted := FitParams{
		Baseline:    result.X[0],
		Depth:       result.X[1],
		CenterHz:    fmin + result.X[2]*span,
		SigmaHz:     math.Abs(result.X[3]) * span,
		Residual:    result.F,
		Evaluations: result.Stats.FuncEvaluations,
	}

	if fitted.Depth <= 0 {
		return nil, fmt.Errorf("fitted dip depth is not positive (%.4g); no resonance shape in data", fitted.Depth)
	}
	if fitted.CenterHz < fmin || fitted.CenterHz > fmin+span {
		return nil, fmt.Errorf("fitted center %.6g Hz is outside the scanned span", fitted.CenterHz)
	}
	if fitted.SigmaHz <= 0 || fitted.SigmaHz > span {
		return nil, fmt.Errorf("fitted width %.4g Hz is wider than the scanned span", fitted.SigmaHz)
	}
	return &fitted, nil
}

func median(v []float64) float64 {
	sorted := make([]float64, len(v))
	copy(sorted, v)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
