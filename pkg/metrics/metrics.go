// Package metrics exposes the Prometheus counters, gauges and
// histograms that describe the scheduler's behavior: how many jobs and
// blocks get checked, how long checks take, how many gaps and errors
// are found, and how busy the in-flight worker pool is.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCheckedTotal counts every CheckChain invocation across all jobs.
	JobsCheckedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_checked_total",
		Help: "Total number of chain-audit job checks performed.",
	})

	// BlocksCheckedTotal counts per-block checks by their resulting status.
	BlocksCheckedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blocks_checked_total",
		Help: "Total number of blocks checked, labeled by resulting status.",
	}, []string{"status"})

	// BlockCheckDuration records how long a single block check takes.
	BlockCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "block_check_duration_seconds",
		Help:    "Duration of a single block check (fetch + compare + persist).",
		Buckets: prometheus.DefBuckets,
	})

	// GapsDetectedTotal counts gap-backfill candidates found per job.
	GapsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gaps_detected_total",
		Help: "Total number of height gaps detected, labeled by job.",
	}, []string{"job_id"})

	// BlockCheckErrorsTotal counts failures encountered while checking a block.
	BlockCheckErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "block_check_errors_total",
		Help: "Total number of block check errors, labeled by job and error type.",
	}, []string{"job_id", "error_type"})

	// ChainSourceAPICallsTotal counts outbound calls to chain-data services.
	ChainSourceAPICallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_source_api_calls_total",
		Help: "Total number of chain-source API calls, labeled by service.",
	}, []string{"service_id"})

	// ChainSourceAPIErrorsTotal counts failed chain-source API calls.
	ChainSourceAPIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_source_api_errors_total",
		Help: "Total number of chain-source API errors, labeled by service and error type.",
	}, []string{"service_id", "error_type"})

	// ErrorReportsTotal counts error reports pushed to a sink (e.g. Slack).
	ErrorReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "error_reports_total",
		Help: "Total number of error reports sent, labeled by sink.",
	}, []string{"sink"})

	// InFlightBlocksRunning is the current number of blocks being actively checked.
	InFlightBlocksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "in_flight_blocks_running",
		Help: "Current number of blocks being checked concurrently.",
	})

	// DispatchRunsTotal counts dispatcher sweeps, labeled by outcome.
	DispatchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_runs_total",
		Help: "Total number of dispatcher sweeps, labeled by outcome.",
	}, []string{"status"})
)

// RecordJobChecked increments the job-check counter.
func RecordJobChecked() {
	JobsCheckedTotal.Inc()
}

// RecordBlockChecked increments the block-check counter for status and
// records the check's duration.
func RecordBlockChecked(status string, duration time.Duration) {
	BlocksCheckedTotal.WithLabelValues(status).Inc()
	BlockCheckDuration.Observe(duration.Seconds())
}

// RecordGapDetected increments the gap-detection counter for jobID.
func RecordGapDetected(jobID string) {
	GapsDetectedTotal.WithLabelValues(jobID).Inc()
}

// RecordBlockCheckError increments the block check error counter.
func RecordBlockCheckError(jobID, errorType string) {
	BlockCheckErrorsTotal.WithLabelValues(jobID, errorType).Inc()
}

// RecordChainSourceAPICall increments the chain-source call counter.
func RecordChainSourceAPICall(serviceID string) {
	ChainSourceAPICallsTotal.WithLabelValues(serviceID).Inc()
}

// RecordChainSourceAPIError increments the chain-source error counter.
func RecordChainSourceAPIError(serviceID, errorType string) {
	ChainSourceAPIErrorsTotal.WithLabelValues(serviceID, errorType).Inc()
}

// RecordErrorReport increments the error-report counter for sink.
func RecordErrorReport(sink string) {
	ErrorReportsTotal.WithLabelValues(sink).Inc()
}

// IncrementInFlightBlocks increments the in-flight block gauge.
func IncrementInFlightBlocks() {
	InFlightBlocksRunning.Inc()
}

// DecrementInFlightBlocks decrements the in-flight block gauge.
func DecrementInFlightBlocks() {
	InFlightBlocksRunning.Dec()
}

// RecordDispatchRun increments the dispatch-run counter for status.
func RecordDispatchRun(status string) {
	DispatchRunsTotal.WithLabelValues(status).Inc()
}

// Timer measures elapsed wall-clock time for a single operation and
// records it against the relevant histogram when done.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// RecordBlockCheck records the elapsed time as a block check with status.
func (t *Timer) RecordBlockCheck(status string) {
	RecordBlockChecked(status, t.Elapsed())
}
