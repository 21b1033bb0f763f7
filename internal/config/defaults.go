// Package config provides configuration loading, defaults, and validation for
// the Concentra pipeline.
package config

import (
	"runtime"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	// DefaultPrevalenceThreshold is the minimum fraction of stimulated cells
	// that must express a gene for its max-induction cluster to qualify.
	DefaultPrevalenceThreshold = 0.05

	// DefaultFoldChangeThreshold is the minimum log2 fold change for a
	// max-induction cluster to qualify.
	DefaultFoldChangeThreshold = 0.25

	// DefaultPseudocount stabilises the log2 fold change when either group
	// mean is zero.
	DefaultPseudocount = 1.0

	DefaultTest             = "ranksum"
	DefaultMinCellsPerGroup = 3

	DefaultOutputFormat    = "tsv"
	DefaultOutputPrecision = 6

	DefaultDBHost        = "localhost"
	DefaultDBPort        = 5432
	DefaultDBName        = "concentra"
	DefaultDBMaxConns    = 10
	DefaultMigrationPath = "file://migrations"

	DefaultStorageEndpoint = "localhost:9000"

	DefaultMetricsNamespace = "concentra"
	DefaultMetricsSubsystem = "pipeline"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the pipeline default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.  It must be called
// after unmarshalling and before Validate so that optional-but-defaulted
// fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Analysis ──────────────────────────────────────────────────────────────
	if cfg.Analysis.PrevalenceThreshold == 0 {
		cfg.Analysis.PrevalenceThreshold = DefaultPrevalenceThreshold
	}
	if cfg.Analysis.FoldChangeThreshold == 0 {
		cfg.Analysis.FoldChangeThreshold = DefaultFoldChangeThreshold
	}
	if cfg.Analysis.Pseudocount == 0 {
		cfg.Analysis.Pseudocount = DefaultPseudocount
	}
	if cfg.Analysis.Test == "" {
		cfg.Analysis.Test = DefaultTest
	}
	if cfg.Analysis.MinCellsPerGroup == 0 {
		cfg.Analysis.MinCellsPerGroup = DefaultMinCellsPerGroup
	}
	if cfg.Analysis.Concurrency == 0 {
		cfg.Analysis.Concurrency = runtime.NumCPU()
	}

	// ── Output ────────────────────────────────────────────────────────────────
	if cfg.Output.Format == "" {
		cfg.Output.Format = DefaultOutputFormat
	}
	if cfg.Output.Precision == 0 {
		cfg.Output.Precision = DefaultOutputPrecision
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultMigrationPath
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = DefaultStorageEndpoint
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if len(cfg.Log.OutputPaths) == 0 {
		// stdout carries the exported table; logs go to stderr.
		cfg.Log.OutputPaths = []string{"stderr"}
	}
	if len(cfg.Log.ErrorOutputPaths) == 0 {
		cfg.Log.ErrorOutputPaths = []string{"stderr"}
	}
}
