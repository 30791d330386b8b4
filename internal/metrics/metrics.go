package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispositionCounter returns leg counts grouped by disposition.
type DispositionCounter interface {
	CountByDisposition(ctx context.Context) (map[string]int64, error)
}

// RecordingCounter returns the number of legs carrying a recording.
type RecordingCounter interface {
	CountRecordings(ctx context.Context) (int64, error)
}

// RunRecorder accumulates reconciliation run statistics for the collector.
// Handlers call Observe after each run.
type RunRecorder struct {
	mu           sync.Mutex
	runs         uint64
	legs         uint64
	sessions     uint64
	lastOrphans  int
	lastDuration time.Duration
}

// Observe records one completed reconciliation run.
func (r *RunRecorder) Observe(legCount, sessionCount, orphanCount int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	r.legs += uint64(legCount)
	r.sessions += uint64(sessionCount)
	r.lastOrphans = orphanCount
	r.lastDuration = d
}

func (r *RunRecorder) snapshot() (runs, legs, sessions uint64, lastOrphans int, lastDuration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.legs, r.sessions, r.lastOrphans, r.lastDuration
}

// Collector is a prometheus.Collector that gathers CallScope metrics at
// scrape time. Any provider may be nil if unavailable.
type Collector struct {
	runs       *RunRecorder
	legs       DispositionCounter
	recordings RecordingCounter
	startTime  time.Time

	runsDesc         *prometheus.Desc
	legsDesc         *prometheus.Desc
	sessionsDesc     *prometheus.Desc
	orphansDesc      *prometheus.Desc
	runDurationDesc  *prometheus.Desc
	dispositionsDesc *prometheus.Desc
	recordingsDesc   *prometheus.Desc
	uptimeDesc       *prometheus.Desc
}

// NewCollector creates a new metrics collector.
func NewCollector(runs *RunRecorder, legs DispositionCounter, recordings RecordingCounter, startTime time.Time) *Collector {
	return &Collector{
		runs:       runs,
		legs:       legs,
		recordings: recordings,
		startTime:  startTime,

		runsDesc: prometheus.NewDesc(
			"callscope_runs_total",
			"Total reconciliation runs executed",
			nil, nil,
		),
		legsDesc: prometheus.NewDesc(
			"callscope_legs_reconciled_total",
			"Total raw CDR legs fed through reconciliation",
			nil, nil,
		),
		sessionsDesc: prometheus.NewDesc(
			"callscope_sessions_built_total",
			"Total logical sessions produced across all runs",
			nil, nil,
		),
		orphansDesc: prometheus.NewDesc(
			"callscope_orphans_unlinked",
			"Unlinked orphan legs in the most recent run",
			nil, nil,
		),
		runDurationDesc: prometheus.NewDesc(
			"callscope_last_run_duration_seconds",
			"Duration of the most recent reconciliation run",
			nil, nil,
		),
		dispositionsDesc: prometheus.NewDesc(
			"callscope_cdr_legs",
			"Raw CDR legs stored, by disposition",
			[]string{"disposition"}, nil,
		),
		recordingsDesc: prometheus.NewDesc(
			"callscope_recordings",
			"CDR legs with a recording reference",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callscope_uptime_seconds",
			"Seconds since the CallScope process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runsDesc
	ch <- c.legsDesc
	ch <- c.sessionsDesc
	ch <- c.orphansDesc
	ch <- c.runDurationDesc
	ch <- c.dispositionsDesc
	ch <- c.recordingsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.runs != nil {
		runs, legs, sessions, lastOrphans, lastDuration := c.runs.snapshot()
		ch <- prometheus.MustNewConstMetric(c.runsDesc, prometheus.CounterValue, float64(runs))
		ch <- prometheus.MustNewConstMetric(c.legsDesc, prometheus.CounterValue, float64(legs))
		ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.CounterValue, float64(sessions))
		ch <- prometheus.MustNewConstMetric(c.orphansDesc, prometheus.GaugeValue, float64(lastOrphans))
		ch <- prometheus.MustNewConstMetric(c.runDurationDesc, prometheus.GaugeValue, lastDuration.Seconds())
	}

	if c.legs != nil {
		counts, err := c.legs.CountByDisposition(ctx)
		if err != nil {
			slog.Error("metrics: failed to count legs by disposition", "error", err)
		} else {
			for disp, n := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.dispositionsDesc, prometheus.GaugeValue, float64(n), disp,
				)
			}
		}
	}

	if c.recordings != nil {
		count, err := c.recordings.CountRecordings(ctx)
		if err != nil {
			slog.Error("metrics: failed to count recordings", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(c.recordingsDesc, prometheus.GaugeValue, float64(count))
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
