package notify

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/monitoring"
	"github.com/banshee-data/resonance.report/internal/report"
	"github.com/banshee-data/resonance.report/internal/sweep"
	"github.com/banshee-data/resonance.report/internal/tracestore"
)

func testInput() report.Input {
	return report.Input{
		Run: tracestore.SweepRun{
			ID:           "run-notify-test",
			Name:         "overnight",
			Band:         sweep.Band{StartHz: 1700e6, StopHz: 1850e6, StepHz: 100e3},
			ResolutionHz: 0.1,
			PowerDB:      10,
			SettleDelay:  100 * time.Millisecond,
			Averages:     5,
			Status:       tracestore.RunCompleted,
			StartedAt:    time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
		},
		Trace: sweep.Trace{
			{FrequencyHz: 1700.0e6, Amplitude: 0.9, Status: sweep.SampleOK},
			{FrequencyHz: 1700.1e6, Amplitude: 0.7, Status: sweep.SampleOK},
			{FrequencyHz: 1700.2e6, Status: sweep.SampleError},
		},
		Analysis: &detect.Report{
			Results: []detect.Result{
				{Method: detect.MethodMinimum, Found: true, FrequencyHz: 1700.1e6},
				{Method: detect.MethodInvertedPeak, Found: false, Diagnostic: "no interior peaks"},
				{Method: detect.MethodGaussianFit, Found: false, Diagnostic: "fit did not converge"},
			},
		},
	}
}

// captureLogs routes package logging into the returned slice for the
// duration of the test.
func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return &lines
}

func TestSweepSubject(t *testing.T) {
	in := testInput()
	if got := sweepSubject(in); got != `Sweep "overnight" completed` {
		t.Errorf("sweepSubject = %q, want completed form", got)
	}

	in.Run.Status = tracestore.RunAborted
	if got := sweepSubject(in); got != `Sweep "overnight" aborted` {
		t.Errorf("sweepSubject = %q, want aborted form", got)
	}

	// Unnamed runs fall back to the id.
	in.Run.Name = ""
	if got := sweepSubject(in); !strings.Contains(got, "run-notify-test") {
		t.Errorf("sweepSubject = %q, want run id fallback", got)
	}
}

func TestAnalysisSubject(t *testing.T) {
	in := testInput()
	if got := analysisSubject(in); !strings.Contains(got, "resonance at 1.7001 GHz") {
		t.Errorf("analysisSubject = %q, want detected frequency", got)
	}

	in.Analysis.Results[0].Found = false
	if got := analysisSubject(in); !strings.Contains(got, "no resonance found") {
		t.Errorf("analysisSubject = %q, want not-found form", got)
	}

	in.Analysis = nil
	if got := analysisSubject(in); !strings.Contains(got, "no resonance found") {
		t.Errorf("analysisSubject = %q, want not-found form without analysis", got)
	}
}

func TestLogNotifier(t *testing.T) {
	lines := captureLogs(t)

	var n Notifier = LogNotifier{}
	n.SweepComplete(testInput())
	n.AnalysisComplete(testInput())

	if len(*lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d: %v", len(*lines), *lines)
	}
	if !strings.Contains((*lines)[0], `Sweep "overnight" completed: 3 samples, 1 errors`) {
		t.Errorf("Unexpected sweep log line: %q", (*lines)[0])
	}
	if !strings.Contains((*lines)[1], "resonance at 1.7001 GHz") {
		t.Errorf("Unexpected analysis log line: %q", (*lines)[1])
	}
}
