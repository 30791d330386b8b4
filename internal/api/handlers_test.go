package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/callscope/callscope/internal/audio"
	"github.com/callscope/callscope/internal/config"
	"github.com/callscope/callscope/internal/database"
	"github.com/callscope/callscope/internal/database/models"
	"github.com/callscope/callscope/internal/session"
)

// fakeLegSource is an in-memory LegSource for handler tests.
type fakeLegSource struct {
	legs []models.RawLeg
	err  error
}

func (f *fakeLegSource) ListLegs(ctx context.Context, filter database.LegFilter) ([]models.RawLeg, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.legs, nil
}

func (f *fakeLegSource) InsertLeg(ctx context.Context, leg *models.RawLeg) error {
	f.legs = append(f.legs, *leg)
	return nil
}

func (f *fakeLegSource) CountByDisposition(ctx context.Context) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	counts := make(map[string]int64)
	for _, l := range f.legs {
		counts[l.Disposition]++
	}
	return counts, nil
}

func (f *fakeLegSource) CountRecordings(ctx context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, l := range f.legs {
		if l.RecordingFile != "" {
			n++
		}
	}
	return n, nil
}

func (f *fakeLegSource) DeleteExpiredRecordings(ctx context.Context, days int) ([]models.ExpiredRecording, error) {
	return nil, f.err
}

func newTestServer(t *testing.T, legs database.LegSource) (*Server, string) {
	t.Helper()
	recordingsDir := t.TempDir()
	cfg := &config.Config{
		DataDir:       t.TempDir(),
		HTTPPort:      8080,
		RecordingsDir: recordingsDir,
		LogLevel:      "error",
		LogFormat:     "text",
	}
	provider := config.NewRulesProvider("", config.DefaultRules())
	srv := NewServer(cfg, legs, provider, audio.NewStore(recordingsDir))
	return srv, recordingsDir
}

func answeredCallLegs() []models.RawLeg {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []models.RawLeg{
		{
			UniqueID: "1700000000.1", CallTime: base,
			CallerID: `"Jane" <5551234>`, Src: "5551234", Dst: "001",
			DurationSec: 10, Disposition: "NO ANSWER",
			RecordingFile: "q-001-1700000000.10.wav",
		},
		{
			UniqueID: "1700000000.2", CallTime: base.Add(8 * time.Second),
			CallerID: `"Jane" <5551234>`, Src: "5551234", Dst: "101",
			DurationSec: 50, BillSec: 45, Disposition: "ANSWERED",
			RecordingFile: "out-101-1700000000.10.wav",
		},
	}
}

type reportEnvelope struct {
	Data struct {
		RunID    string                   `json:"run_id"`
		LegCount int                      `json:"leg_count"`
		Sessions []session.LogicalSession `json:"sessions"`
		Orphans  []session.NormalizedLeg  `json:"orphans"`
	} `json:"data"`
	Error string `json:"error"`
}

func TestHandleReport(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLegSource{legs: answeredCallLegs()})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp reportEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Data.RunID == "" {
		t.Error("expected a run id")
	}
	if resp.Data.LegCount != 2 {
		t.Errorf("leg_count = %d, want 2", resp.Data.LegCount)
	}
	if len(resp.Data.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(resp.Data.Sessions))
	}
	s := resp.Data.Sessions[0]
	if s.Status != session.StatusAnswered || s.AnsweredBy != "101" {
		t.Errorf("unexpected session: status=%v answered_by=%q", s.Status, s.AnsweredBy)
	}
}

func TestHandleReportSourceUnavailable(t *testing.T) {
	src := &fakeLegSource{err: fmt.Errorf("%w: connection refused", database.ErrSourceUnavailable)}
	srv, _ := newTestServer(t, src)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the cdr source fails, got %d", rr.Code)
	}

	var resp reportEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != "cdr source unavailable" {
		t.Errorf("error = %q", resp.Error)
	}
	if len(resp.Data.Sessions) != 0 {
		t.Error("a failed run must not return partial sessions")
	}
}

func TestHandleReportInvalidParams(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLegSource{})

	for _, target := range []string{
		"/api/v1/report?start=bogus",
		"/api/v1/report?end=not-a-date",
		"/api/v1/report?start=2024-05-02&end=2024-05-01",
	} {
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestHandleOrphans(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	legs := []models.RawLeg{
		{UniqueID: "q", CallTime: base, Src: "5551234", Dst: "001", Disposition: "NO ANSWER"},
		{UniqueID: "far", CallTime: base.Add(5 * time.Minute), Src: "5551234", Dst: "102", Disposition: "ANSWERED"},
	}
	srv, _ := newTestServer(t, &fakeLegSource{legs: legs})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orphans", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp reportEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Data.Orphans) != 1 || resp.Data.Orphans[0].UniqueID != "far" {
		t.Errorf("unexpected orphans: %+v", resp.Data.Orphans)
	}
}

func TestHandleReportExport(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLegSource{legs: answeredCallLegs()})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/report/export", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "session_id,master_id") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "ANSWERED") || !strings.Contains(lines[1], "101") {
		t.Errorf("unexpected row: %s", lines[1])
	}
}

func TestHandleStats(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLegSource{legs: answeredCallLegs()})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Data struct {
			TotalLegs     int64            `json:"total_legs"`
			ByDisposition map[string]int64 `json:"by_disposition"`
			Recordings    int64            `json:"recordings"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Data.TotalLegs != 2 || resp.Data.Recordings != 2 {
		t.Errorf("totals = %d legs / %d recordings, want 2/2", resp.Data.TotalLegs, resp.Data.Recordings)
	}
	if resp.Data.ByDisposition["ANSWERED"] != 1 {
		t.Errorf("by_disposition = %v", resp.Data.ByDisposition)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLegSource{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHandleHealthSourceDown(t *testing.T) {
	src := &fakeLegSource{err: fmt.Errorf("%w: ping failed", database.ErrSourceUnavailable)}
	srv, _ := newTestServer(t, src)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestHandleDownloadRecording(t *testing.T) {
	srv, recordingsDir := newTestServer(t, &fakeLegSource{})
	if err := os.WriteFile(filepath.Join(recordingsDir, "rec-1700000000.1.wav"), []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("failed to write recording: %v", err)
	}

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/recordings/rec-1700000000.1.wav/download", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("Content-Disposition = %q, want attachment", cd)
	}
	if rr.Body.String() != "RIFF" {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestHandleStreamRecordingDatedLayout(t *testing.T) {
	srv, recordingsDir := newTestServer(t, &fakeLegSource{})
	dated := filepath.Join(recordingsDir, "2024", "05", "01")
	if err := os.MkdirAll(dated, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dated, "rec.wav"), []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("failed to write recording: %v", err)
	}

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/recordings/rec.wav?date=2024-05-01", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline") {
		t.Errorf("Content-Disposition = %q, want inline", cd)
	}
}

func TestHandleRecordingNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLegSource{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/recordings/absent.wav", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLegSource{legs: answeredCallLegs()})

	// One report run so the run counters are populated.
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"callscope_runs_total 1",
		"callscope_legs_reconciled_total 2",
		"callscope_sessions_built_total 1",
		"callscope_uptime_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %q", metric)
		}
	}
}
