package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/callscope/callscope/internal/database"
)

// handleHealth returns basic health status. It probes the CDR source so a
// load balancer can tell a dead backend from a dead database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.legs.CountRecordings(r.Context()); err != nil {
		if errors.Is(err, database.ErrSourceUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "cdr source unavailable")
			return
		}
		slog.Error("health: probe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats returns dashboard statistics: stored leg counts by
// disposition, the recording count, and uptime.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	dispositions, err := s.legs.CountByDisposition(r.Context())
	if err != nil {
		s.writeStatsError(w, "count by disposition", err)
		return
	}

	recordings, err := s.legs.CountRecordings(r.Context())
	if err != nil {
		s.writeStatsError(w, "count recordings", err)
		return
	}

	var total int64
	for _, n := range dispositions {
		total += n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_legs":     total,
		"by_disposition": dispositions,
		"recordings":     recordings,
		"uptime_sec":     int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) writeStatsError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, database.ErrSourceUnavailable) {
		slog.Error("stats: cdr source unavailable", "op", op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "cdr source unavailable")
		return
	}
	slog.Error("stats: query failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
