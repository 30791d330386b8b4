package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeCounts struct {
	dispositions map[string]int64
	recordings   int64
}

func (f *fakeCounts) CountByDisposition(ctx context.Context) (map[string]int64, error) {
	return f.dispositions, nil
}

func (f *fakeCounts) CountRecordings(ctx context.Context) (int64, error) {
	return f.recordings, nil
}

func TestRunRecorderAccumulates(t *testing.T) {
	var rec RunRecorder
	rec.Observe(10, 4, 2, 50*time.Millisecond)
	rec.Observe(6, 3, 0, 20*time.Millisecond)

	runs, legs, sessions, lastOrphans, lastDuration := rec.snapshot()
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
	if legs != 16 {
		t.Errorf("legs = %d, want 16", legs)
	}
	if sessions != 7 {
		t.Errorf("sessions = %d, want 7", sessions)
	}
	if lastOrphans != 0 {
		t.Errorf("lastOrphans = %d, want last run's value", lastOrphans)
	}
	if lastDuration != 20*time.Millisecond {
		t.Errorf("lastDuration = %v, want last run's value", lastDuration)
	}
}

func TestCollectorGathers(t *testing.T) {
	var rec RunRecorder
	rec.Observe(5, 2, 1, 10*time.Millisecond)

	counts := &fakeCounts{
		dispositions: map[string]int64{"ANSWERED": 3, "NO ANSWER": 2},
		recordings:   4,
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(&rec, counts, counts, time.Now()))

	expected := strings.NewReader(`
# HELP callscope_runs_total Total reconciliation runs executed
# TYPE callscope_runs_total counter
callscope_runs_total 1
# HELP callscope_legs_reconciled_total Total raw CDR legs fed through reconciliation
# TYPE callscope_legs_reconciled_total counter
callscope_legs_reconciled_total 5
# HELP callscope_sessions_built_total Total logical sessions produced across all runs
# TYPE callscope_sessions_built_total counter
callscope_sessions_built_total 2
# HELP callscope_orphans_unlinked Unlinked orphan legs in the most recent run
# TYPE callscope_orphans_unlinked gauge
callscope_orphans_unlinked 1
# HELP callscope_cdr_legs Raw CDR legs stored, by disposition
# TYPE callscope_cdr_legs gauge
callscope_cdr_legs{disposition="ANSWERED"} 3
callscope_cdr_legs{disposition="NO ANSWER"} 2
# HELP callscope_recordings CDR legs with a recording reference
# TYPE callscope_recordings gauge
callscope_recordings 4
`)

	err := testutil.GatherAndCompare(reg, expected,
		"callscope_runs_total",
		"callscope_legs_reconciled_total",
		"callscope_sessions_built_total",
		"callscope_orphans_unlinked",
		"callscope_cdr_legs",
		"callscope_recordings",
	)
	if err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestCollectorNilProviders(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(nil, nil, nil, time.Now()))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// Only uptime remains when every provider is absent.
	if len(families) != 1 || families[0].GetName() != "callscope_uptime_seconds" {
		t.Errorf("unexpected families: %v", families)
	}
}
