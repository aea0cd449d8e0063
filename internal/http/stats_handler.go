package http

import (
	"log/slog"
	"net/http"

	"github.com/example/timetable-scheduler/internal/analytics"
)

type statsSource interface {
	Snapshot() analytics.Statistics
}

// StatsHandler exposes the analytics aggregate over HTTP.
type StatsHandler struct {
	stats     statsSource
	responder responder
}

func NewStatsHandler(stats statsSource, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, responder: newResponder(logger)}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.stats == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.stats.Snapshot())
}
