package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/units"
)

func (in Input) summaryTitle() string {
	if in.Run.Name != "" {
		return fmt.Sprintf("Sweep run %s (%s)", in.Run.Name, in.Run.ID)
	}
	return fmt.Sprintf("Sweep run %s", in.Run.ID)
}

// WriteSummary renders the plain-text run summary: metadata, sample
// accounting, the held time estimate against the actual duration, and
// the per-method detection table.
func WriteSummary(w io.Writer, in Input) error {
	var b strings.Builder

	b.WriteString(in.summaryTitle() + "\n")
	fmt.Fprintf(&b, "  Band:       %s (%d points)\n", in.Run.Band, in.Run.Band.StepCount())
	fmt.Fprintf(&b, "  Resolution: %s\n", units.FormatHz(in.Run.ResolutionHz))
	fmt.Fprintf(&b, "  Power:      %.1f dB\n", in.Run.PowerDB)
	fmt.Fprintf(&b, "  Settle:     %s, %d readings per step\n", in.Run.SettleDelay, in.Run.Averages)
	fmt.Fprintf(&b, "  Status:     %s\n", in.Run.Status)
	if in.Run.ErrorNote != "" {
		fmt.Fprintf(&b, "  Error:      %s\n", in.Run.ErrorNote)
	}
	fmt.Fprintf(&b, "  Started:    %s\n", in.Run.StartedAt.UTC().Format(time.RFC3339))
	if in.Run.CompletedAt != nil {
		fmt.Fprintf(&b, "  Duration:   %s\n", in.Run.CompletedAt.Sub(in.Run.StartedAt).Round(time.Second))
	}

	fmt.Fprintf(&b, "  Samples:    %d collected, %d errors\n", len(in.Trace), in.Trace.ErrorCount())
	if skipped := in.Trace.SkippedFrequencies(); len(skipped) > 0 {
		parts := make([]string, len(skipped))
		for i, hz := range skipped {
			parts[i] = units.FormatHz(hz)
		}
		fmt.Fprintf(&b, "  Skipped:    %s\n", strings.Join(parts, ", "))
	}

	if in.Estimate != nil {
		fmt.Fprintf(&b, "\nEstimate: %s\n", in.Estimate)
	}

	if in.Analysis != nil {
		b.WriteString("\nDetection:\n")
		for _, res := range in.Analysis.Results {
			if res.Found {
				fmt.Fprintf(&b, "  %-14s %s\n", res.Method, units.FormatHz(res.FrequencyHz))
			} else {
				fmt.Fprintf(&b, "  %-14s not found (%s)\n", res.Method, res.Diagnostic)
			}
		}
		if fit := in.Analysis.Fit; fit != nil {
			fmt.Fprintf(&b, "  Fit: baseline %.4f, depth %.4f, sigma %s, residual %.3g (%d evaluations)\n",
				fit.Baseline, fit.Depth, units.FormatHz(fit.SigmaHz), fit.Residual, fit.Evaluations)
		}
		if res, ok := PreferredResult(in.Analysis); ok {
			fmt.Fprintf(&b, "\nResonance: %s (%s)\n", units.FormatHz(res.FrequencyHz), res.Method)
		} else {
			b.WriteString("\nResonance: not found\n")
		}
		if in.Analysis.PlotSuggested {
			b.WriteString("The Gaussian fit did not converge; inspect the raw trace plot.\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// PreferredResult picks the headline frequency: the fit when it
// converged, otherwise the first successful search method.
func PreferredResult(rep *detect.Report) (detect.Result, bool) {
	for _, res := range rep.Results {
		if res.Found && res.Method == detect.MethodGaussianFit {
			return res, true
		}
	}
	for _, res := range rep.Results {
		if res.Found {
			return res, true
		}
	}
	return detect.Result{}, false
}
