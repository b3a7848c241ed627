package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/httputil"
	"github.com/banshee-data/resonance.report/internal/report"
	"github.com/banshee-data/resonance.report/internal/tracestore"
)

// handleRunChart renders the interactive chart for a stored run, markers
// rebuilt from its recorded detections.
func (ws *WebServer) handleRunChart(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := ws.store.GetRun(runID)
	if err != nil {
		if errors.Is(err, tracestore.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("get run: %v", err))
		return
	}

	trace, err := ws.store.LoadTrace(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load trace: %v", err))
		return
	}

	detections, err := ws.store.LoadDetections(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load detections: %v", err))
		return
	}

	ws.renderChart(w, report.Input{Run: *run, Trace: trace, Analysis: reportFromDetections(detections)})
}

// handleDebugTraceChart serves the chart of whatever trace is most alive:
// the attached controller's when it has samples, otherwise the most
// recently stored run's.
func (ws *WebServer) handleDebugTraceChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if ws.source != nil {
		snap := ws.source.Snapshot()
		if len(snap.Trace) > 0 {
			run := tracestore.SweepRun{ID: "live", Band: snap.Band, Status: tracestore.RunStatus(snap.Status)}
			if snap.StartedAt != nil {
				run.StartedAt = *snap.StartedAt
			}
			ws.renderChart(w, report.Input{Run: run, Trace: snap.Trace, Estimate: snap.Estimate})
			return
		}
	}

	if ws.store == nil {
		httputil.InternalServerError(w, "no trace database configured")
		return
	}
	runs, err := ws.store.ListRuns(1)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list runs: %v", err))
		return
	}
	if len(runs) == 0 {
		httputil.NotFound(w, "no sweep has run yet")
		return
	}
	ws.handleRunChart(w, r, runs[0].ID)
}

// renderChart renders into a buffer so a failed render reports a JSON
// error instead of emitting half a page.
func (ws *WebServer) renderChart(w http.ResponseWriter, in report.Input) {
	var buf bytes.Buffer
	if err := report.RenderTraceChart(&buf, in); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		logf("WARNING: failed to write chart response: %v", err)
	}
}

// reportFromDetections rebuilds a detection report from stored rows so the
// chart renderer can place its markers. The smoothed series is not stored
// and stays absent.
func reportFromDetections(detections []tracestore.Detection) *detect.Report {
	if len(detections) == 0 {
		return nil
	}
	rep := &detect.Report{}
	for _, d := range detections {
		res := detect.Result{Method: d.Method, Found: d.Found, Diagnostic: d.Diagnostic}
		if d.FrequencyHz != nil {
			res.FrequencyHz = *d.FrequencyHz
		}
		rep.Results = append(rep.Results, res)
		if d.Fit != nil {
			rep.Fit = d.Fit
		}
		if d.PlotSuggested {
			rep.PlotSuggested = true
		}
	}
	return rep
}
