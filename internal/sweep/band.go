// Package sweep drives a microwave source across a configured frequency
// band, recording the cavity response at each step. It produces an ordered
// Trace of samples plus a one-shot completion-time estimate, tolerating
// per-step instrument failures without aborting the run.
package sweep

import (
	"fmt"
	"math"

	"github.com/banshee-data/resonance.report/internal/units"
)

// maxSweepPoints bounds the number of steps a single sweep may visit.
// A band/step combination exceeding this is almost certainly a configuration
// mistake (e.g. a step entered in Hz where MHz was meant) and would tie up
// the instrument for hours.
const maxSweepPoints = 1_000_000

// quantizeSlack is the relative tolerance used to decide whether a
// frequency already sits on the resolution grid. Stepping a band with
// floating-point arithmetic leaves remainders around one ulp, which at
// 2 GHz against a 0.1 Hz grid is ~1e-16 relative; anything larger is a
// genuinely off-grid request and gets rounded up.
const quantizeSlack = 1e-12

// Band defines the frequency range a sweep visits: every multiple of
// StepHz from StartHz upward until StopHz is reached or passed. The final
// point may overshoot StopHz when the span is not an integer multiple of
// the step.
type Band struct {
	StartHz float64 `json:"start_hz"`
	StopHz  float64 `json:"stop_hz"`
	StepHz  float64 `json:"step_hz"`
}

// Validate reports whether the band describes a usable sweep range.
func (b Band) Validate() error {
	if b.StartHz >= b.StopHz {
		return fmt.Errorf("band start (%s) must be below stop (%s)",
			units.FormatHz(b.StartHz), units.FormatHz(b.StopHz))
	}
	if b.StepHz <= 0 {
		return fmt.Errorf("band step must be positive, got %g Hz", b.StepHz)
	}
	if n := b.StepCount(); n > maxSweepPoints {
		return fmt.Errorf("band requires %d steps, exceeding the limit of %d", n, maxSweepPoints)
	}
	return nil
}

// SpanHz returns the width of the band in Hz.
func (b Band) SpanHz() float64 {
	return b.StopHz - b.StartHz
}

// StepCount returns the number of frequencies the sweep visits:
// ceil((stop-start)/step)+1. The division is given a small relative
// allowance so that a span that is an exact multiple of the step does not
// gain a spurious extra point from floating-point round-off.
func (b Band) StepCount() int {
	if b.StepHz <= 0 || b.StartHz >= b.StopHz {
		return 0
	}
	ratio := b.SpanHz() / b.StepHz
	slack := quantizeSlack * math.Max(ratio, 1)
	return int(math.Ceil(ratio-slack)) + 1
}

// FrequencyAt returns the i-th target frequency. Frequencies are computed
// from the band start by multiplication rather than accumulation, so late
// steps carry no summed rounding error.
func (b Band) FrequencyAt(i int) float64 {
	return b.StartHz + float64(i)*b.StepHz
}

// Frequencies materializes every target frequency in ascending order.
// Returns nil if the band fails validation.
func (b Band) Frequencies() []float64 {
	if err := b.Validate(); err != nil {
		return nil
	}
	n := b.StepCount()
	out := make([]float64, n)
	for i := range out {
		out[i] = b.FrequencyAt(i)
	}
	return out
}

func (b Band) String() string {
	return fmt.Sprintf("%s to %s step %s",
		units.FormatHz(b.StartHz), units.FormatHz(b.StopHz), units.FormatHz(b.StepHz))
}

// Resolution is the minimum frequency increment the signal source accepts.
// Commanded frequencies must land on integer multiples of it or the
// instrument firmware rejects the command.
type Resolution float64

// DefaultResolution matches the 0.1 Hz tuning grid of the target
// synthesizer.
const DefaultResolution Resolution = 0.1

// Validate reports whether the resolution is usable.
func (r Resolution) Validate() error {
	if r <= 0 {
		return fmt.Errorf("instrument resolution must be positive, got %g Hz", float64(r))
	}
	return nil
}

// OnGrid reports whether hz already lies on the resolution grid, within
// the same stepping-noise allowance Quantize applies.
func (r Resolution) OnGrid(hz float64) bool {
	if r <= 0 {
		return true
	}
	ratio := hz / float64(r)
	nearest := math.Round(ratio)
	return math.Abs(ratio-nearest) <= quantizeSlack*math.Max(math.Abs(ratio), 1)
}

// Quantize rounds hz onto the resolution grid. A value already on the
// grid (within quantizeSlack, which absorbs float stepping noise) is
// returned snapped to its exact multiple; anything genuinely between grid
// points is rounded up, so the commanded value is never below the
// requested one. Quantize is idempotent: quantizing a quantized value
// yields the same result.
func (r Resolution) Quantize(hz float64) float64 {
	if r <= 0 {
		return hz
	}
	ratio := hz / float64(r)
	if r.OnGrid(hz) {
		return math.Round(ratio) * float64(r)
	}
	return math.Ceil(ratio) * float64(r)
}
