// Package monitor serves the HTTP surface of a sweep rig: a human status
// page, JSON APIs for live sweep state and stored runs, and the /debug
// registry carrying instrument and database administration.
package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/resonance.report/internal/monitoring"
	"github.com/banshee-data/resonance.report/internal/sweep"
	"github.com/banshee-data/resonance.report/internal/tracestore"
	"github.com/banshee-data/resonance.report/internal/version"
)

//go:embed status.html
var statusHTML embed.FS

var logf = monitoring.Prefixed("monitor")

// AdminRoutable is anything that contributes handlers to the /debug
// registry. The serial mux and the trace database both implement it.
type AdminRoutable interface {
	AttachAdminRoutes(mux *http.ServeMux)
}

// WebServer handles the HTTP interface for monitoring a sweep rig. It
// provides endpoints for health checks, live sweep state, and stored runs.
type WebServer struct {
	address   string
	source    SweepSource
	store     *tracestore.DB
	admin     []AdminRoutable
	synthDev  string
	probeAddr string
	server    *http.Server
	startedAt time.Time
}

// WebServerConfig contains configuration options for the web server.
// Source and Store are optional: endpoints backed by an absent component
// report that instead of serving.
type WebServerConfig struct {
	Address   string
	Source    SweepSource
	Store     *tracestore.DB
	Admin     []AdminRoutable
	SynthDev  string
	ProbeAddr string
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		source:    config.Source,
		store:     config.Store,
		admin:     config.Admin,
		synthDev:  config.SynthDev,
		probeAddr: config.ProbeAddr,
		startedAt: time.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
// when the context is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		logf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}

	logf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/sweep/state", ws.handleSweepState)
	mux.HandleFunc("/api/runs", ws.handleRunsAPI)
	mux.HandleFunc("/api/runs/", ws.handleRunsAPI)

	debug := tsweb.Debugger(mux)
	debug.Handle("trace/chart", "Chart of the live or most recent sweep trace", http.HandlerFunc(ws.handleDebugTraceChart))

	for _, a := range ws.admin {
		a.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "resonance", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var state *sweep.Snapshot
	percent := 0
	if ws.source != nil {
		snap := ws.source.Snapshot()
		state = &snap
		if snap.TotalSteps > 0 {
			percent = snap.StepIndex * 100 / snap.TotalSteps
		}
	}

	dbPath := "none"
	var recent []tracestore.SweepRun
	if ws.store != nil {
		dbPath = ws.store.Path()
		runs, err := ws.store.ListRuns(10)
		if err != nil {
			logf("WARNING: failed to list runs for status page: %v", err)
		} else {
			recent = runs
		}
	}

	data := struct {
		HTTPAddress string
		SynthDev    string
		ProbeAddr   string
		DBPath      string
		Version     string
		Uptime      string
		State       *sweep.Snapshot
		Percent     int
		RecentRuns  []tracestore.SweepRun
	}{
		HTTPAddress: ws.address,
		SynthDev:    ws.synthDev,
		ProbeAddr:   ws.probeAddr,
		DBPath:      dbPath,
		Version:     version.String(),
		Uptime:      time.Since(ws.startedAt).Round(time.Second).String(),
		State:       state,
		Percent:     percent,
		RecentRuns:  recent,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
