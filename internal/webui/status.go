package webui

import (
	"net/http"
	"time"

	"effectifs/internal/progress"
)

// statusResponse is the tracker wire form plus the page's loader flag.
type statusResponse struct {
	progress.Status
	ShowLoader bool `json:"show_loader"`
}

// ShowLoader reports whether the page should keep the initialization view:
// while setup is needed, and for CompletionDelay after a successful run.
func ShowLoader(snap progress.Snapshot, now time.Time) bool {
	if snap.NeedsSetup {
		return true
	}
	if snap.Success && snap.FinishedAt != nil {
		return now.Sub(*snap.FinishedAt) < CompletionDelay
	}
	return false
}

func (s *Server) status() statusResponse {
	snap := s.deps.Tracker.Snapshot()
	return statusResponse{Status: snap.Status(), ShowLoader: ShowLoader(snap, s.now())}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, s.status())
}

// handleStart resets the tracker and starts the pipeline, unless a run is
// already in flight.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.deps.Runner.Running() {
		writeError(w, http.StatusConflict, "initialisation deja en cours")
		return
	}
	s.deps.Tracker.Reset(true)
	if !s.deps.Runner.StartBackground(s.bg) {
		writeError(w, http.StatusConflict, "initialisation deja en cours")
		return
	}
	writeJSON(w, http.StatusAccepted, s.status())
}

func (s *Server) handleCleanLabels(w http.ResponseWriter, r *http.Request) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.deps.Tracker.Snapshot().NeedsSetup || s.deps.Runner.Running() {
		writeError(w, http.StatusConflict, "initialisation en cours")
		return
	}
	s.deps.Tracker.Reset(false)
	if !s.deps.Runner.StartLabelCleaning(s.bg) {
		writeError(w, http.StatusConflict, "initialisation en cours")
		return
	}
	writeJSON(w, http.StatusAccepted, s.status())
}
