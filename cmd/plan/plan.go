// Command plan previews a sweep without touching hardware: it prints
// the quantized frequency grid, the step count, and a projected
// duration for the configured cadence, and can dump the planned
// frequencies as CSV.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/resonance.report/internal/config"
	"github.com/banshee-data/resonance.report/internal/security"
	"github.com/banshee-data/resonance.report/internal/sweep"
	"github.com/banshee-data/resonance.report/internal/units"
)

func main() {
	// Band parameters (flags override the config file)
	configPath := flag.String("config", "", "Path to the sweep config JSON (in-code defaults when empty)")
	startHz := flag.Float64("start-hz", 0, "Band start in Hz (overrides the config)")
	stopHz := flag.Float64("stop-hz", 0, "Band stop in Hz (overrides the config)")
	stepHz := flag.Float64("step-hz", 0, "Band step in Hz (overrides the config)")
	resolutionHz := flag.Float64("resolution-hz", 0, "Synthesizer tuning grid in Hz (overrides the config)")

	// Cadence for the duration projection
	settle := flag.Duration("settle", 0, "Settle delay per step (overrides the config)")
	averages := flag.Int("averages", 0, "Readings per step (overrides the config)")
	readTime := flag.Duration("read-time", 50*time.Millisecond, "Assumed duration of one probe reading")

	// Output
	output := flag.String("output", "", "CSV filename for the planned frequencies (no dump when empty)")

	flag.Parse()

	cfg := config.EmptySweepConfig()
	if *configPath != "" {
		loaded, err := config.LoadSweepConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load sweep config: %v", err)
		}
		cfg = loaded
	}

	band := cfg.GetBand()
	if *startHz > 0 {
		band.StartHz = *startHz
	}
	if *stopHz > 0 {
		band.StopHz = *stopHz
	}
	if *stepHz > 0 {
		band.StepHz = *stepHz
	}
	if err := band.Validate(); err != nil {
		log.Fatalf("Invalid band: %v", err)
	}

	res := cfg.GetResolution()
	if *resolutionHz > 0 {
		res = sweep.Resolution(*resolutionHz)
	}
	if err := res.Validate(); err != nil {
		log.Fatalf("Invalid resolution: %v", err)
	}

	settleDelay := cfg.GetSettleDelay()
	if *settle > 0 {
		settleDelay = *settle
	}
	readings := cfg.GetAverages()
	if *averages > 0 {
		readings = *averages
	}

	freqs, rounded := planFrequencies(band, res)
	perStep := settleDelay + time.Duration(readings)*(*readTime)
	projected := time.Duration(len(freqs)) * perStep

	fmt.Printf("Sweep plan: %s\n", band)
	fmt.Printf("  Steps:      %d (%s span)\n", len(freqs), units.FormatHz(band.SpanHz()))
	if rounded == 0 {
		fmt.Printf("  Resolution: %s, all points on grid\n", units.FormatHz(float64(res)))
	} else {
		fmt.Printf("  Resolution: %s, %d points rounded up\n", units.FormatHz(float64(res)), rounded)
	}
	fmt.Printf("  Per step:   %s (%s settle + %d readings x %s)\n", perStep, settleDelay, readings, *readTime)
	fmt.Printf("  Projected:  %s\n", projected)

	if *output != "" {
		if err := dumpPlanCSV(*output, freqs); err != nil {
			log.Fatalf("Could not write plan file %s: %v", *output, err)
		}
		log.Printf("Planned frequencies written to %s", *output)
	}
}

// planFrequencies materializes the band's grid with each point
// quantized onto the instrument resolution, reporting how many were
// moved off their requested value.
func planFrequencies(band sweep.Band, res sweep.Resolution) ([]float64, int) {
	freqs := band.Frequencies()
	rounded := 0
	for i, f := range freqs {
		if !res.OnGrid(f) {
			rounded++
		}
		freqs[i] = res.Quantize(f)
	}
	return freqs, rounded
}

// dumpPlanCSV writes the planned frequencies to a user-supplied path,
// restricted to the working directory or the system temp directory.
func dumpPlanCSV(path string, freqs []float64) error {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writePlanCSV(f, freqs)
}

func writePlanCSV(w io.Writer, freqs []float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"step_index", "frequency_hz"}); err != nil {
		return err
	}
	for i, f := range freqs {
		record := []string{strconv.Itoa(i), strconv.FormatFloat(f, 'f', -1, 64)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
