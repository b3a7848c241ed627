// Package report renders finished sweeps for humans: a text summary, a
// static PNG plot, and an interactive HTML chart. All file output goes
// through the fsutil filesystem abstraction so rendering is testable
// without touching disk.
package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/fsutil"
	"github.com/banshee-data/resonance.report/internal/monitoring"
	"github.com/banshee-data/resonance.report/internal/security"
	"github.com/banshee-data/resonance.report/internal/sweep"
	"github.com/banshee-data/resonance.report/internal/tracestore"
)

var logf = monitoring.Prefixed("report")

// Input bundles everything one report renders from. Analysis and
// Estimate are optional: a report over an aborted run still shows the
// trace and metadata.
type Input struct {
	Run      tracestore.SweepRun
	Trace    sweep.Trace
	Analysis *detect.Report
	Estimate *sweep.TimeEstimate
}

// Artifacts lists the files one WriteArtifacts call produced.
type Artifacts struct {
	Dir     string
	Summary string
	Plot    string
	Chart   string
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakeOutputDir returns a timestamped output directory for one run's
// artifacts: <baseDir>/<run name>/<timestamp>, or <baseDir>/run_<timestamp>
// when the run is unnamed. The run name is sanitized before it becomes a
// path component.
func MakeOutputDir(baseDir, runName string) string {
	ts := FormatTimestamp(time.Now())
	if runName != "" {
		return filepath.Join(baseDir, security.SanitizeFilename(runName), ts)
	}
	return filepath.Join(baseDir, "run_"+ts)
}

// WriteArtifacts renders the summary, plot, and chart into a fresh
// timestamped directory under baseDir. Rendering failures of individual
// artifacts are logged and skipped so one bad artifact does not lose the
// others; only the directory itself failing is fatal.
func WriteArtifacts(fs fsutil.FileSystem, baseDir string, in Input) (Artifacts, error) {
	dir := MakeOutputDir(baseDir, in.Run.Name)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return Artifacts{}, fmt.Errorf("failed to create output dir: %w", err)
	}
	out := Artifacts{Dir: dir}

	var buf bytes.Buffer
	if err := WriteSummary(&buf, in); err != nil {
		logf("WARNING: failed to render summary for run %s: %v", in.Run.ID, err)
	} else {
		path := filepath.Join(dir, "summary.txt")
		if err := fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
			logf("WARNING: failed to write %s: %v", path, err)
		} else {
			out.Summary = path
		}
	}

	if png, err := RenderTracePlot(in); err != nil {
		logf("WARNING: failed to render plot for run %s: %v", in.Run.ID, err)
	} else {
		path := filepath.Join(dir, "trace.png")
		if err := fs.WriteFile(path, png, 0644); err != nil {
			logf("WARNING: failed to write %s: %v", path, err)
		} else {
			out.Plot = path
		}
	}

	buf.Reset()
	if err := RenderTraceChart(&buf, in); err != nil {
		logf("WARNING: failed to render chart for run %s: %v", in.Run.ID, err)
	} else {
		path := filepath.Join(dir, "trace.html")
		if err := fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
			logf("WARNING: failed to write %s: %v", path, err)
		} else {
			out.Chart = path
		}
	}

	return out, nil
}
