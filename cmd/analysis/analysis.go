// Command analysis runs resonance detection over an already recorded
// trace. The trace comes either from a run in the trace database or
// from a CSV file, and the tool prints the per-method report, optionally
// records the detections back onto the stored run, and writes the
// annotated artifacts for inspection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/resonance.report/internal/config"
	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/fsutil"
	"github.com/banshee-data/resonance.report/internal/report"
	"github.com/banshee-data/resonance.report/internal/security"
	"github.com/banshee-data/resonance.report/internal/sweep"
	"github.com/banshee-data/resonance.report/internal/tracestore"
)

func main() {
	// Trace source (a stored run by default, a CSV file with -csv)
	dbPath := flag.String("db", "resonance.db", "Trace database path")
	runID := flag.String("run", "", "Run ID to analyse (defaults to the most recent run)")
	csvPath := flag.String("csv", "", "Trace CSV file to analyse instead of a stored run")

	// Detection parameters
	analysisPath := flag.String("analysis-config", "", "Path to the analysis config JSON (in-code defaults when empty)")

	// Outputs
	outDir := flag.String("out", "output", "Directory for report artifacts (empty disables writing)")
	record := flag.Bool("record", false, "Record the detections back onto the stored run")
	exportCSV := flag.String("export-csv", "", "Export the loaded trace as CSV to this path")

	flag.Parse()

	if *record && *csvPath != "" {
		log.Fatal("-record needs a stored run; it cannot be combined with -csv")
	}

	analysisCfg := config.EmptyAnalysisConfig()
	if *analysisPath != "" {
		loaded, err := config.LoadAnalysisConfig(*analysisPath)
		if err != nil {
			log.Fatalf("Failed to load analysis config: %v", err)
		}
		analysisCfg = loaded
	}

	var (
		run   *tracestore.SweepRun
		trace sweep.Trace
		store *tracestore.DB
	)
	if *csvPath != "" {
		var err error
		run, trace, err = loadFromCSV(*csvPath)
		if err != nil {
			log.Fatalf("Failed to load trace from %s: %v", *csvPath, err)
		}
	} else {
		// NewDB would silently create a fresh empty database at a
		// mistyped path; require an existing file instead.
		if _, err := os.Stat(*dbPath); err != nil {
			log.Fatalf("Trace database %s is not readable: %v", *dbPath, err)
		}
		var err error
		store, err = tracestore.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to trace database: %v", err)
		}
		defer store.Close()

		run, trace, err = loadFromStore(store, *runID)
		if err != nil {
			log.Fatalf("Failed to load run: %v", err)
		}
	}
	log.Printf("Loaded %d samples (%d errors) for run %s", len(trace), trace.ErrorCount(), run.ID)

	rep, err := detect.NewDetector(analysisCfg.DetectorConfig()).Run(trace)
	switch {
	case errors.Is(err, detect.ErrInsufficientData):
		log.Fatalf("Cannot analyse trace: %v", err)
	case errors.Is(err, detect.ErrNoResonanceFound):
		log.Print("WARNING: no method found a resonance; the artifacts may help inspection")
	case err != nil:
		log.Fatalf("Detection failed: %v", err)
	}

	in := report.Input{Run: *run, Trace: trace, Analysis: rep}
	if err := report.WriteSummary(os.Stdout, in); err != nil {
		log.Fatalf("Failed to print summary: %v", err)
	}

	if *record {
		if err := store.RecordDetections(context.Background(), run.ID, rep); err != nil {
			log.Fatalf("Failed to record detections: %v", err)
		}
		log.Printf("Recorded %d detections onto run %s", len(rep.Results), run.ID)
	}

	if *outDir != "" {
		if err := security.ValidateExportPath(*outDir); err != nil {
			log.Fatalf("Invalid output directory: %v", err)
		}
		arts, err := report.WriteArtifacts(fsutil.OSFileSystem{}, *outDir, in)
		if err != nil {
			log.Fatalf("Failed to write artifacts: %v", err)
		}
		log.Printf("Artifacts written to %s", arts.Dir)
	}

	if *exportCSV != "" {
		if err := exportTraceCSV(*exportCSV, trace); err != nil {
			log.Fatalf("Failed to export trace to %s: %v", *exportCSV, err)
		}
		log.Printf("Trace exported to %s", *exportCSV)
	}
}

// loadFromStore fetches the run record and its trace. An empty runID
// selects the most recently started run.
func loadFromStore(store *tracestore.DB, runID string) (*tracestore.SweepRun, sweep.Trace, error) {
	if runID == "" {
		runs, err := store.ListRuns(1)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			return nil, nil, fmt.Errorf("the database holds no runs")
		}
		runID = runs[0].ID
		log.Printf("No run given; using the most recent: %s", runID)
	}

	run, err := store.GetRun(runID)
	if err != nil {
		return nil, nil, err
	}
	trace, err := store.LoadTrace(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(trace) == 0 {
		return nil, nil, fmt.Errorf("run %s has no recorded samples", runID)
	}
	return run, trace, nil
}

// loadFromCSV reads a trace file and synthesizes run metadata from it:
// the band from the recorded frequencies, the start time from the file
// modification time.
func loadFromCSV(path string) (*tracestore.SweepRun, sweep.Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	trace, err := tracestore.ReadTraceCSV(f)
	if err != nil {
		return nil, nil, err
	}

	base := filepath.Base(path)
	run := &tracestore.SweepRun{
		ID:     base,
		Name:   strings.TrimSuffix(base, filepath.Ext(base)),
		Band:   bandFromTrace(trace),
		Status: tracestore.RunCompleted,
	}
	if info, err := os.Stat(path); err == nil {
		run.StartedAt = info.ModTime()
	}
	return run, trace, nil
}

// bandFromTrace reconstructs the swept band from the recorded
// frequencies; CSV files carry no band metadata of their own.
func bandFromTrace(trace sweep.Trace) sweep.Band {
	freqs := trace.Frequencies()
	if len(freqs) < 2 {
		return sweep.Band{}
	}
	return sweep.Band{
		StartHz: freqs[0],
		StopHz:  freqs[len(freqs)-1],
		StepHz:  freqs[1] - freqs[0],
	}
}

// exportTraceCSV writes the loaded trace to a user-supplied path,
// restricted to the working directory or the system temp directory.
func exportTraceCSV(path string, trace sweep.Trace) error {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tracestore.WriteTraceCSV(f, trace)
}
