package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all pipeline settings.
const envPrefix = "CONCENTRA"

// newViper builds a pre-configured Viper instance with the pipeline's
// standard settings: YAML file type, CONCENTRA_ env prefix, automatic env
// binding, and a key replacer that maps "." → "_" so that nested keys like
// "database.host" resolve to "CONCENTRA_DATABASE_HOST".
// configKeys lists every leaf key in Config.  Viper's Unmarshal only visits
// keys it has seen in a file, a default, or an explicit binding, so each key
// is bound here to make pure-environment loading work.
var configKeys = []string{
	"input.matrix_path", "input.annotations_path", "input.categories_path",
	"analysis.genes", "analysis.clusters",
	"analysis.condition_a", "analysis.condition_b",
	"analysis.prevalence_threshold", "analysis.fold_change_threshold",
	"analysis.pseudocount", "analysis.test", "analysis.min_cells_per_group",
	"analysis.concurrency", "analysis.adjust_p_values",
	"output.path", "output.format", "output.precision",
	"database.enabled", "database.host", "database.port", "database.user",
	"database.password", "database.db_name", "database.ssl_mode",
	"database.max_conns", "database.min_conns",
	"database.conn_max_lifetime", "database.conn_max_idle_time",
	"database.migration_path",
	"storage.enabled", "storage.endpoint", "storage.access_key",
	"storage.secret_key", "storage.bucket", "storage.use_ssl", "storage.prefix",
	"metrics.enabled", "metrics.addr", "metrics.namespace", "metrics.subsystem",
	"log.level", "log.format", "log.output_paths", "log.error_output_paths",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges any CONCENTRA_* environment
// variable overrides, applies defaults for unset fields, and validates the
// result.  It returns a fully-populated *Config or a descriptive error.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from CONCENTRA_* environment
// variables, with no config file required.
//
// Environment variable naming convention:
//
//	CONCENTRA_<SECTION>_<FIELD>   e.g.  CONCENTRA_ANALYSIS_CONDITION_A
func LoadFromEnv() (*Config, error) {
	v := newViper()
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  It is intended for
// hot-reloading non-critical settings such as the log level during a long
// run; callers are responsible for applying only the safe subset of changes.
//
// Watch is non-blocking; it starts a background goroutine managed by viper.
// If the changed file fails to parse or validate, onChange is not called.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read; errors are ignored here since callers call Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// Intended for use in main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
