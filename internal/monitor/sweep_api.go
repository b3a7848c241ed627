package monitor

import (
	"net/http"

	"github.com/banshee-data/resonance.report/internal/httputil"
	"github.com/banshee-data/resonance.report/internal/sweep"
)

// SweepSource provides live sweep state to the API handlers. The
// acquisition binary points this at the active controller;
// *sweep.Controller satisfies it directly.
type SweepSource interface {
	Snapshot() sweep.Snapshot
}

// handleSweepState returns the current controller snapshot as JSON.
func (ws *WebServer) handleSweepState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if ws.source == nil {
		httputil.ServiceUnavailable(w, "no sweep controller attached")
		return
	}

	httputil.WriteJSONOK(w, ws.source.Snapshot())
}
