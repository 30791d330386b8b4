package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/callscope/callscope/internal/database"
	"github.com/callscope/callscope/internal/session"
)

// parseLegFilter builds a leg filter from query parameters.
// Query params: start, end (RFC3339 or YYYY-MM-DD), uniqueid, disposition
// (comma-separated, may repeat).
func parseLegFilter(r *http.Request) (database.LegFilter, error) {
	q := r.URL.Query()
	var filter database.LegFilter

	if raw := q.Get("start"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid start: %w", err)
		}
		filter.Start = t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid end: %w", err)
		}
		// A bare date as the end bound means "through that day".
		if len(raw) == len("2006-01-02") {
			t = t.Add(24*time.Hour - time.Second)
		}
		filter.End = t
	}
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		return filter, errors.New("end must not be before start")
	}

	filter.UniqueID = q.Get("uniqueid")

	for _, raw := range q["disposition"] {
		for _, d := range strings.Split(raw, ",") {
			if d = strings.TrimSpace(d); d != "" {
				filter.Dispositions = append(filter.Dispositions, strings.ToUpper(d))
			}
		}
	}

	return filter, nil
}

// parseTimeParam accepts RFC3339 timestamps or bare YYYY-MM-DD dates.
func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// runReport fetches the filtered legs and runs a full reconciliation pass
// with the current rules snapshot.
func (s *Server) runReport(r *http.Request) (*session.Result, error) {
	filter, err := parseLegFilter(r)
	if err != nil {
		return nil, err
	}

	legs, err := s.legs.ListLegs(r.Context(), filter)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result := session.NewEngine(s.rules.Current()).Reconstruct(legs)
	s.runs.Observe(result.LegCount, len(result.Sessions), len(result.Orphans), time.Since(started))

	slog.Info("reconciliation run complete",
		"run_id", result.RunID,
		"legs", result.LegCount,
		"sessions", len(result.Sessions),
		"orphans", len(result.Orphans),
		"duration", time.Since(started),
	)

	return result, nil
}

// handleReport runs a reconciliation pass over the filtered legs and
// returns the full result: sessions plus unlinked orphans.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	result, err := s.runReport(r)
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleOrphans runs a reconciliation pass and returns only the legs that
// could not be attributed to any session.
func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	result, err := s.runReport(r)
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  result.RunID,
		"orphans": result.Orphans,
	})
}

// handleReportExport streams the session report as a CSV attachment.
func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request) {
	result, err := s.runReport(r)
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}

	filename := fmt.Sprintf("callscope-report-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	header := []string{
		"session_id", "master_id", "caller_name", "caller_number", "src",
		"start_time", "end_time", "status", "answered_by", "wait_time_sec",
		"bill_sec", "recording", "operator_attempts", "queue_legs", "other_legs",
	}
	if err := cw.Write(header); err != nil {
		slog.Error("report export: failed to write csv header", "error", err)
		return
	}

	for i := range result.Sessions {
		if err := cw.Write(sessionCSVRow(&result.Sessions[i])); err != nil {
			slog.Error("report export: failed to write csv row", "error", err)
			return
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("report export: failed to flush csv", "error", err)
	}
}

// sessionCSVRow flattens one logical session into a CSV record.
func sessionCSVRow(s *session.LogicalSession) []string {
	wait := ""
	if s.WaitTimeSec != nil {
		wait = strconv.Itoa(*s.WaitTimeSec)
	}
	return []string{
		s.SessionID,
		s.MasterID,
		s.CallerName,
		s.CallerNumber,
		s.Src,
		s.StartTime.Format(time.RFC3339),
		s.EndTime.Format(time.RFC3339),
		string(s.Status),
		s.AnsweredBy,
		wait,
		strconv.Itoa(s.BillSec),
		s.Recording.Filename,
		strconv.Itoa(len(s.OperatorAttempts)),
		strconv.Itoa(len(s.QueueLegs)),
		strconv.Itoa(len(s.OtherLegs)),
	}
}

// writeReportError maps a report failure to the right status code. A CDR
// source failure is 503: the run aborted rather than returning a partial
// session set.
func (s *Server) writeReportError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, database.ErrSourceUnavailable) {
		slog.Error("report: cdr source unavailable", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusServiceUnavailable, "cdr source unavailable")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
