package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultPrevalenceThreshold, cfg.Analysis.PrevalenceThreshold)
	assert.Equal(t, DefaultFoldChangeThreshold, cfg.Analysis.FoldChangeThreshold)
	assert.Equal(t, DefaultPseudocount, cfg.Analysis.Pseudocount)
	assert.Equal(t, DefaultTest, cfg.Analysis.Test)
	assert.Equal(t, DefaultOutputFormat, cfg.Output.Format)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Namespace)
	assert.Equal(t, []string{"stderr"}, cfg.Log.OutputPaths)
	assert.Positive(t, cfg.Analysis.Concurrency)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Analysis.PrevalenceThreshold = 0.10
	cfg.Analysis.Concurrency = 2
	cfg.Output.Format = "json"
	ApplyDefaults(cfg)

	assert.Equal(t, 0.10, cfg.Analysis.PrevalenceThreshold)
	assert.Equal(t, 2, cfg.Analysis.Concurrency)
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestApplyDefaults_NilConfig(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
