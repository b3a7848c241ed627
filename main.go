// Command resonance-report drives one microwave cavity sweep end to
// end: it steps the synthesizer across the configured band, reads the
// probe at each frequency, persists the trace, runs resonance
// detection, writes the report artifacts, and serves a monitoring HTTP
// surface for the whole of it. The process keeps serving the monitor
// after the sweep finishes so the operator can inspect the result;
// SIGINT or SIGTERM shuts it down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/resonance.report/internal/config"
	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/fsutil"
	"github.com/banshee-data/resonance.report/internal/instrument"
	"github.com/banshee-data/resonance.report/internal/monitor"
	"github.com/banshee-data/resonance.report/internal/notify"
	"github.com/banshee-data/resonance.report/internal/report"
	"github.com/banshee-data/resonance.report/internal/serialmux"
	"github.com/banshee-data/resonance.report/internal/sweep"
	"github.com/banshee-data/resonance.report/internal/tracestore"
)

var (
	// Configuration sources
	configPath   = flag.String("config", "", "Path to the sweep config JSON (in-code defaults when empty)")
	analysisPath = flag.String("analysis-config", "", "Path to the analysis config JSON (in-code defaults when empty)")

	// Run options
	listen    = flag.String("listen", ":8080", "HTTP listen address for the monitor")
	devMode   = flag.Bool("dev", false, "Sweep a synthetic cavity instead of real hardware")
	runName   = flag.String("name", "", "Run name (overrides the config)")
	runDetect = flag.Bool("detect", true, "Run resonance detection after the sweep completes")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, analysisCfg := loadConfigs()

	store, err := tracestore.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to trace database: %v", err)
	}
	defer store.Close()
	if err := store.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate trace database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	var (
		port      sweep.InstrumentPort
		source    *instrument.WindfreakSource
		synthDev  = cfg.GetSynthDevice()
		probeAddr = cfg.GetProbeAddr()
		admins    = []monitor.AdminRoutable{store}
	)
	if *devMode {
		band := cfg.GetBand()
		cavity := instrument.NewSyntheticCavity(instrument.SyntheticCavityConfig{
			CenterHz: (band.StartHz + band.StopHz) / 2,
			NoiseStd: 0.002,
		})
		port = cavity
		synthDev = "synthetic cavity"
		probeAddr = "synthetic cavity"
		log.Print("Dev mode: sweeping a synthetic cavity centered mid-band")
	} else {
		mux, err := serialmux.NewRealSerialMux(synthDev, cfg.GetSynthPort())
		if err != nil {
			log.Fatalf("Failed to open synthesizer port %s: %v", synthDev, err)
		}
		defer mux.Close()
		admins = append(admins, mux)

		// run the monitor routine to manage IO on the serial port; the
		// Identify query below needs it running to see its reply
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		source = instrument.NewWindfreakSource(mux, instrument.WindfreakConfig{PowerDB: cfg.GetPowerDB()})
		idCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if fw, err := source.Identify(idCtx); err != nil {
			log.Printf("WARNING: synthesizer identification failed: %v", err)
		} else {
			log.Printf("Synthesizer firmware: %s", fw)
		}
		cancel()

		probe, err := instrument.DialRedPitaya(instrument.RedPitayaConfig{
			Addr:    probeAddr,
			Channel: cfg.GetProbeChannel(),
		})
		if err != nil {
			log.Fatalf("Failed to connect to probe at %s: %v", probeAddr, err)
		}
		defer probe.Close()

		port = instrument.Combine(source, probe)
	}

	ctrl, err := sweep.NewController(sweep.Config{
		Band:            cfg.GetBand(),
		Resolution:      cfg.GetResolution(),
		SettleDelay:     cfg.GetSettleDelay(),
		EstimationSteps: cfg.GetEstimationSteps(),
		Averages:        cfg.GetAverages(),
	})
	if err != nil {
		log.Fatalf("Invalid sweep configuration: %v", err)
	}

	name := cfg.GetRunName()
	if *runName != "" {
		name = *runName
	}
	record := &tracestore.SweepRun{
		Name:         name,
		Band:         cfg.GetBand(),
		ResolutionHz: float64(cfg.GetResolution()),
		PowerDB:      cfg.GetPowerDB(),
		SettleDelay:  cfg.GetSettleDelay(),
		Averages:     cfg.GetAverages(),
	}
	if err := store.CreateRun(record); err != nil {
		log.Fatalf("Failed to create run record: %v", err)
	}
	log.Printf("Run %s (%s): sweeping %s", record.ID, record.Name, record.Band)

	// HTTP server goroutine; serves status, run APIs, and admin routes
	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:   *listen,
		Source:    ctrl,
		Store:     store,
		Admin:     admins,
		SynthDev:  synthDev,
		ProbeAddr: probeAddr,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	p := &pipeline{
		cfg:      cfg,
		analysis: analysisCfg,
		store:    store,
		ctrl:     ctrl,
		port:     port,
		source:   source,
		record:   record,
		notifier: buildNotifier(cfg),
		analyze:  *runDetect,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.run(ctx)
		log.Printf("Run finished; monitor serving on %s until interrupted", *listen)
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// loadConfigs resolves the sweep and analysis configs, falling back to
// in-code defaults when no paths were given.
func loadConfigs() (*config.SweepConfig, *config.AnalysisConfig) {
	cfg := config.EmptySweepConfig()
	if *configPath != "" {
		loaded, err := config.LoadSweepConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load sweep config: %v", err)
		}
		cfg = loaded
	}

	analysis := config.EmptyAnalysisConfig()
	if *analysisPath != "" {
		loaded, err := config.LoadAnalysisConfig(*analysisPath)
		if err != nil {
			log.Fatalf("Failed to load analysis config: %v", err)
		}
		analysis = loaded
	}
	return cfg, analysis
}

// buildNotifier picks mail or log-only notification. A missing or
// unreadable secrets file downgrades to log-only rather than aborting
// the sweep.
func buildNotifier(cfg *config.SweepConfig) notify.Notifier {
	if !cfg.GetNotifyOnComplete() {
		return notify.LogNotifier{}
	}
	secrets, err := config.LoadSMTPSecrets(cfg.GetSMTPSecretsPath())
	if err != nil {
		log.Printf("WARNING: mail notification disabled: %v", err)
		return notify.LogNotifier{}
	}
	return notify.NewMailer(secrets)
}

// pipeline is one acquisition end to end: enable output, sweep,
// persist, detect, report, notify. It owns the run record lifecycle;
// the web server reads the same controller and store concurrently.
type pipeline struct {
	cfg      *config.SweepConfig
	analysis *config.AnalysisConfig
	store    *tracestore.DB
	ctrl     *sweep.Controller
	port     sweep.InstrumentPort
	source   *instrument.WindfreakSource // nil in dev mode
	record   *tracestore.SweepRun
	notifier notify.Notifier
	analyze  bool
}

func (p *pipeline) run(ctx context.Context) {
	if p.source != nil {
		if err := p.source.Enable(ctx); err != nil {
			log.Printf("ERROR: failed to enable synthesizer output: %v", err)
			p.finalize(tracestore.RunFailed, fmt.Sprintf("enable synthesizer: %v", err))
			return
		}
		defer func() {
			if err := p.source.Disable(context.Background()); err != nil {
				log.Printf("WARNING: failed to disable synthesizer output: %v", err)
			}
		}()
	}

	trace, err := p.ctrl.Run(ctx, p.port)

	status := tracestore.RunCompleted
	note := ""
	switch {
	case errors.Is(err, sweep.ErrSweepAborted):
		status = tracestore.RunAborted
		note = "interrupted before completing the band"
	case err != nil:
		status = tracestore.RunFailed
		note = err.Error()
		log.Printf("ERROR: sweep failed: %v", err)
	}

	// Persistence runs on a fresh context so the interrupt that aborted
	// the sweep does not also discard the partial trace.
	if len(trace) > 0 {
		if err := p.store.InsertSamples(context.Background(), p.record.ID, trace); err != nil {
			log.Printf("ERROR: failed to persist trace: %v", err)
		}
	}
	p.finalize(status, note)

	stored, err := p.store.GetRun(p.record.ID)
	if err != nil {
		log.Printf("WARNING: failed to reload run record: %v", err)
		stored = p.record
	}

	in := report.Input{Run: *stored, Trace: trace, Estimate: p.ctrl.Estimate()}

	if p.analyze && status == tracestore.RunCompleted {
		rep, err := detect.NewDetector(p.analysis.DetectorConfig()).Run(trace)
		if err != nil {
			log.Printf("WARNING: detection: %v", err)
		}
		if rep != nil {
			in.Analysis = rep
			if err := p.store.RecordDetections(context.Background(), p.record.ID, rep); err != nil {
				log.Printf("WARNING: failed to record detections: %v", err)
			}
		}
	}

	if err := report.WriteSummary(os.Stdout, in); err != nil {
		log.Printf("WARNING: failed to print summary: %v", err)
	}

	arts, err := report.WriteArtifacts(fsutil.OSFileSystem{}, p.cfg.GetOutputDir(), in)
	if err != nil {
		log.Printf("ERROR: failed to write artifacts: %v", err)
	} else {
		log.Printf("Artifacts written to %s", arts.Dir)
	}

	p.notifier.SweepComplete(in)
	if in.Analysis != nil {
		p.notifier.AnalysisComplete(in)
	}
}

func (p *pipeline) finalize(status tracestore.RunStatus, note string) {
	if err := p.store.FinalizeRun(p.record.ID, status, note); err != nil {
		log.Printf("ERROR: failed to finalize run %s: %v", p.record.ID, err)
	}
}
