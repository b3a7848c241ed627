package monitor

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/resonance.report/internal/httputil"
	"github.com/banshee-data/resonance.report/internal/tracestore"
)

// handleRunsAPI is the dispatcher for /api/runs/* endpoints. It parses the
// URL path and hands off to the appropriate sub-handler.
func (ws *WebServer) handleRunsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		httputil.InternalServerError(w, "no trace database configured")
		return
	}

	runID, subPath := parseRunPath(r.URL.Path)

	// Handle /api/runs (list runs)
	if runID == "" {
		ws.handleListRuns(w, r)
		return
	}

	switch subPath {
	case "":
		ws.handleGetRun(w, r, runID)
	case "trace":
		ws.handleRunTrace(w, r, runID)
	case "detections":
		ws.handleRunDetections(w, r, runID)
	case "chart":
		ws.handleRunChart(w, r, runID)
	default:
		httputil.NotFound(w, "endpoint not found")
	}
}

// parseRunPath extracts the run id and remaining path segment from
// /api/runs/{run_id}/...
func parseRunPath(path string) (runID string, subPath string) {
	trimmed := strings.TrimPrefix(path, "/api/runs")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	runID = parts[0]
	if len(parts) == 2 {
		subPath = strings.Trim(parts[1], "/")
	}
	return runID, subPath
}

// handleListRuns returns the most recent stored runs, newest first.
// Query params:
//
//	limit (optional, default 10, max 100)
func (ws *WebServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > 100 {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'limit' parameter %q", l))
			return
		}
		limit = n
	}

	runs, err := ws.store.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []tracestore.SweepRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

// handleGetRun returns one run record together with its stored detections.
func (ws *WebServer) handleGetRun(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := ws.store.GetRun(runID)
	if err != nil {
		if errors.Is(err, tracestore.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("get run: %v", err))
		return
	}

	detections, err := ws.store.LoadDetections(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load detections: %v", err))
		return
	}

	resp := struct {
		Run        *tracestore.SweepRun   `json:"run"`
		Detections []tracestore.Detection `json:"detections,omitempty"`
	}{run, detections}
	httputil.WriteJSONOK(w, resp)
}

// handleRunTrace returns the stored trace for a run in step order.
func (ws *WebServer) handleRunTrace(w http.ResponseWriter, r *http.Request, runID string) {
	trace, err := ws.store.LoadTrace(runID)
	if err != nil {
		if errors.Is(err, tracestore.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("load trace: %v", err))
		return
	}
	httputil.WriteJSONOK(w, trace)
}

// handleRunDetections returns the stored detection outcomes for a run.
func (ws *WebServer) handleRunDetections(w http.ResponseWriter, r *http.Request, runID string) {
	if _, err := ws.store.GetRun(runID); err != nil {
		if errors.Is(err, tracestore.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("get run: %v", err))
		return
	}

	detections, err := ws.store.LoadDetections(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load detections: %v", err))
		return
	}
	if detections == nil {
		detections = []tracestore.Detection{}
	}
	httputil.WriteJSONOK(w, detections)
}
