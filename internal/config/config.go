// Package config defines all configuration structures for the Concentra
// pipeline.  No I/O or parsing logic lives here just plain data types and
// validation.
package config

import (
	"fmt"
	"time"

	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// InputConfig names the three input files consumed by an analysis run.
type InputConfig struct {
	MatrixPath      string `mapstructure:"matrix_path"`
	AnnotationsPath string `mapstructure:"annotations_path"`
	CategoriesPath  string `mapstructure:"categories_path"`
}

// AnalysisConfig holds the scientific parameters of a run.
type AnalysisConfig struct {
	Genes               []string `mapstructure:"genes"`
	Clusters            []string `mapstructure:"clusters"`
	ConditionA          string   `mapstructure:"condition_a"`
	ConditionB          string   `mapstructure:"condition_b"`
	PrevalenceThreshold float64  `mapstructure:"prevalence_threshold"`
	FoldChangeThreshold float64  `mapstructure:"fold_change_threshold"`
	Pseudocount         float64  `mapstructure:"pseudocount"`
	Test                string   `mapstructure:"test"` // "ranksum"
	MinCellsPerGroup    int      `mapstructure:"min_cells_per_group"`
	Concurrency         int      `mapstructure:"concurrency"`
	AdjustPValues       bool     `mapstructure:"adjust_p_values"`
}

// OutputConfig controls where and how the summary table is written.
type OutputConfig struct {
	Path      string `mapstructure:"path"`   // empty means stdout
	Format    string `mapstructure:"format"` // "tsv" | "csv" | "json"
	Precision int    `mapstructure:"precision"`
}

// DatabaseConfig holds PostgreSQL connection parameters for optional
// result persistence.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// StorageConfig holds MinIO / S3-compatible object-storage parameters for
// optional artifact upload.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds Prometheus exposition parameters.  Addr is the listen
// address of the scrape endpoint held open for the duration of the run; an
// empty Addr disables the listener while metrics are still collected.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for a Concentra run.
type Config struct {
	Input    InputConfig       `mapstructure:"input"`
	Analysis AnalysisConfig    `mapstructure:"analysis"`
	Output   OutputConfig      `mapstructure:"output"`
	Database DatabaseConfig    `mapstructure:"database"`
	Storage  StorageConfig     `mapstructure:"storage"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Log      logging.LogConfig `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start a run.
func (c *Config) Validate() error {
	// Analysis
	if c.Analysis.ConditionA == "" {
		return fmt.Errorf("config: analysis.condition_a is required")
	}
	if c.Analysis.ConditionB == "" {
		return fmt.Errorf("config: analysis.condition_b is required")
	}
	if c.Analysis.ConditionA == c.Analysis.ConditionB {
		return fmt.Errorf("config: analysis.condition_a and analysis.condition_b must differ, both are %q", c.Analysis.ConditionA)
	}
	if c.Analysis.PrevalenceThreshold < 0 || c.Analysis.PrevalenceThreshold > 1 {
		return fmt.Errorf("config: analysis.prevalence_threshold %g is out of range [0, 1]", c.Analysis.PrevalenceThreshold)
	}
	if c.Analysis.FoldChangeThreshold < 0 {
		return fmt.Errorf("config: analysis.fold_change_threshold must be >= 0, got %g", c.Analysis.FoldChangeThreshold)
	}
	if c.Analysis.Pseudocount <= 0 {
		return fmt.Errorf("config: analysis.pseudocount must be > 0, got %g", c.Analysis.Pseudocount)
	}
	if c.Analysis.Test != "ranksum" {
		return fmt.Errorf("config: analysis.test %q is unsupported; expected ranksum", c.Analysis.Test)
	}
	if c.Analysis.MinCellsPerGroup < 1 {
		return fmt.Errorf("config: analysis.min_cells_per_group must be >= 1, got %d", c.Analysis.MinCellsPerGroup)
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("config: analysis.concurrency must be >= 1, got %d", c.Analysis.Concurrency)
	}

	// Output
	switch c.Output.Format {
	case "tsv", "csv", "json":
	default:
		return fmt.Errorf("config: output.format %q is invalid; expected tsv|csv|json", c.Output.Format)
	}
	if c.Output.Precision < 0 || c.Output.Precision > 17 {
		return fmt.Errorf("config: output.precision %d is out of range [0, 17]", c.Output.Precision)
	}

	// Database (validated only when persistence is on)
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required when database.enabled is true")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required when database.enabled is true")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required when database.enabled is true")
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
		}
	}

	// Storage (validated only when artifact upload is on)
	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("config: storage.endpoint is required when storage.enabled is true")
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.bucket is required when storage.enabled is true")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required when metrics.enabled is true")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
