package app

import (
	"encoding/json"
	"net/http"
)

// handleHealthz reports process liveness only; it does not reflect
// trie/scheduler health (use /metrics for that), matching the teacher's
// handlers.go health endpoint split between a cheap liveness probe and a
// richer readiness probe. There is no readiness concept here worth a
// separate endpoint — the ops server is either answering or it isn't.
func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleSnapshot serves the most recent snapshot the scheduler pushed to
// the registered handlers, cached by the app's internal snapshotCache
// handler rather than forcing an extra trie walk per request.
func (a *App) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := a.snapCache.latest()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		a.logger.WithError(err).Error("failed to encode snapshot response")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
