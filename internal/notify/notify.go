// Package notify announces run completion. Long sweeps run unattended;
// the notifier is how the operator learns the rig is ready for the next
// configuration without polling the monitor page.
package notify

import (
	"fmt"

	"github.com/banshee-data/resonance.report/internal/monitoring"
	"github.com/banshee-data/resonance.report/internal/report"
	"github.com/banshee-data/resonance.report/internal/units"
)

var logf = monitoring.Prefixed("notify")

// Notifier announces run lifecycle events. Implementations swallow
// their own delivery failures: a notification must never fail a run
// that already succeeded.
type Notifier interface {
	// SweepComplete fires when acquisition finishes, in any terminal
	// status. The input carries no analysis yet.
	SweepComplete(in report.Input)

	// AnalysisComplete fires when detection over a finalized trace
	// finishes.
	AnalysisComplete(in report.Input)
}

// runLabel names a run for subjects and log lines.
func runLabel(in report.Input) string {
	if in.Run.Name != "" {
		return in.Run.Name
	}
	return in.Run.ID
}

func sweepSubject(in report.Input) string {
	return fmt.Sprintf("Sweep %q %s", runLabel(in), in.Run.Status)
}

func analysisSubject(in report.Input) string {
	if in.Analysis != nil {
		if res, ok := report.PreferredResult(in.Analysis); ok {
			return fmt.Sprintf("Analysis of sweep %q: resonance at %s", runLabel(in), units.FormatHz(res.FrequencyHz))
		}
	}
	return fmt.Sprintf("Analysis of sweep %q: no resonance found", runLabel(in))
}

// LogNotifier is the default notifier: completion lands in the process
// log and nowhere else.
type LogNotifier struct{}

func (LogNotifier) SweepComplete(in report.Input) {
	logf("%s: %d samples, %d errors", sweepSubject(in), len(in.Trace), in.Trace.ErrorCount())
}

func (LogNotifier) AnalysisComplete(in report.Input) {
	logf("%s", analysisSubject(in))
}
