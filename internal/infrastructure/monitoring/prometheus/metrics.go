package prometheus

import (
	"time"
)

// PipelineMetrics holds all metrics emitted by the analysis pipeline.
type PipelineMetrics struct {
	// Run lifecycle
	RunsTotal        CounterVec   // status = completed | failed
	RunDuration      HistogramVec // status
	StageDuration    HistogramVec // stage = aggregate | score | differential | select | join | export | persist

	// Gene accounting
	GenesConfigured  CounterVec // no labels
	GenesReported    CounterVec // no labels
	GenesExcluded    CounterVec // reason = undefined_score | no_induction_evidence | missing_category
	ClustersSkipped  CounterVec // reason = missing_differential_data

	// Differential engine
	ClustersCompared    CounterVec   // test family label
	DifferentialRecords CounterVec   // cluster-independent total, labelled by test
	ActiveWorkers       GaugeVec     // bounded worker pool occupancy

	// Sinks
	DBQueryDuration     HistogramVec // operation
	ArtifactUploadTotal CounterVec   // status
	ErrorsTotal         CounterVec   // component, code
}

// Histogram buckets tuned for a batch pipeline: stages run from milliseconds
// (join) to minutes (differential testing on large matrices).
var (
	DefaultStageDurationBuckets = []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120, 300, 600}
	DefaultDBDurationBuckets    = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewPipelineMetrics registers all pipeline metrics on collector.
func NewPipelineMetrics(collector MetricsCollector) *PipelineMetrics {
	m := &PipelineMetrics{}

	m.RunsTotal = collector.RegisterCounter("runs_total", "Analysis runs by outcome", "status")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Total analysis run duration", DefaultStageDurationBuckets, "status")
	m.StageDuration = collector.RegisterHistogram("stage_duration_seconds", "Per-stage duration", DefaultStageDurationBuckets, "stage")

	m.GenesConfigured = collector.RegisterCounter("genes_configured_total", "Genes configured as pipeline input")
	m.GenesReported = collector.RegisterCounter("genes_reported_total", "Genes surviving all filters and joins")
	m.GenesExcluded = collector.RegisterCounter("genes_excluded_total", "Genes excluded from the final table", "reason")
	m.ClustersSkipped = collector.RegisterCounter("clusters_skipped_total", "Cluster/condition combinations with insufficient cells", "reason")

	m.ClustersCompared = collector.RegisterCounter("clusters_compared_total", "Per-cluster differential comparisons completed", "test")
	m.DifferentialRecords = collector.RegisterCounter("differential_records_total", "Differential records produced", "test")
	m.ActiveWorkers = collector.RegisterGauge("active_workers", "Occupied differential workers", "pool")

	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Summary repository query duration", DefaultDBDurationBuckets, "operation")
	m.ArtifactUploadTotal = collector.RegisterCounter("artifact_uploads_total", "Exported table uploads", "status")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")

	return m
}

// RecordStage observes a completed stage duration.
func RecordStage(m *PipelineMetrics, stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordExclusion counts one gene excluded for the given reason.
func RecordExclusion(m *PipelineMetrics, reason string) {
	if m == nil {
		return
	}
	m.GenesExcluded.WithLabelValues(reason).Inc()
}

// RecordError counts one error against a component.
func RecordError(m *PipelineMetrics, component, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
