package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessellabio/concentra/internal/application/analysis"
	"github.com/tessellabio/concentra/internal/config"
	"github.com/tessellabio/concentra/internal/domain/category"
	"github.com/tessellabio/concentra/internal/domain/differential"
	"github.com/tessellabio/concentra/internal/domain/expression"
	"github.com/tessellabio/concentra/internal/infrastructure/database/postgres"
	"github.com/tessellabio/concentra/internal/infrastructure/database/postgres/repositories"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/prometheus"
	"github.com/tessellabio/concentra/internal/infrastructure/storage/minio"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// runOptions are per-invocation overrides of the loaded configuration.
type runOptions struct {
	MatrixPath      string
	AnnotationsPath string
	CategoriesPath  string
	OutputPath      string
	Format          string
	ConditionA      string
	ConditionB      string
	Genes           []string
	Clusters        []string
}

// NewRunCommand creates the run subcommand.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one analysis run and write the summary table",
		Long: "run loads the expression matrix, cell annotations, and category table,\n" +
			"executes the concentration and induction pipeline, and writes the summary\n" +
			"table to stdout or to --out. Logs go to stderr; stdout carries only the table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runAnalysis(cmd.Context(), cliCtx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.MatrixPath, "matrix", "", "expression matrix TSV (header = gene IDs, one row per cell)")
	f.StringVar(&opts.AnnotationsPath, "annotations", "", "cell annotations TSV (cell, cluster, condition)")
	f.StringVar(&opts.CategoriesPath, "categories", "", "gene category TSV (gene, category)")
	f.StringVarP(&opts.OutputPath, "out", "o", "", "output file (default: stdout)")
	f.StringVar(&opts.Format, "format", "", "output format (tsv, csv, json)")
	f.StringVar(&opts.ConditionA, "condition-a", "", "induced condition label")
	f.StringVar(&opts.ConditionB, "condition-b", "", "baseline condition label")
	f.StringSliceVar(&opts.Genes, "genes", nil, "genes to analyze (default: config analysis.genes)")
	f.StringSliceVar(&opts.Clusters, "clusters", nil, "clusters to analyze (default: all observed)")

	return cmd
}

func runAnalysis(ctx context.Context, cliCtx *CLIContext, opts *runOptions) error {
	cfg := applyRunOverrides(cliCtx.Config, opts)
	log := cliCtx.Logger

	metrics, stopMetrics, err := initMetrics(cfg.Metrics, log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	inputs, err := loadInputs(cfg.Input)
	if err != nil {
		return err
	}

	req := buildRequest(cfg.Analysis)
	service := analysis.NewService(log, metrics)
	result, err := service.Run(ctx, inputs, req)
	if err != nil {
		return err
	}

	exporter, err := analysis.NewExporter(cfg.Output.Format, cfg.Output.Precision)
	if err != nil {
		return err
	}

	var table bytes.Buffer
	if err := exporter.Export(&table, result); err != nil {
		return err
	}
	if err := writeTable(cfg.Output.Path, table.Bytes()); err != nil {
		return err
	}

	if cfg.Database.Enabled {
		if err := persistResult(ctx, cfg, log, metrics, result); err != nil {
			return err
		}
	}
	if cfg.Storage.Enabled {
		if err := uploadArtifact(ctx, cfg, log, metrics, result, table.Bytes()); err != nil {
			return err
		}
	}

	log.Info("run finished",
		logging.String("run_id", string(result.RunID)),
		logging.Int("rows", len(result.Rows)),
		logging.Duration("elapsed", result.Elapsed),
	)
	return nil
}

// applyRunOverrides layers flag values over the loaded config; flags win.
func applyRunOverrides(base *config.Config, opts *runOptions) *config.Config {
	cfg := *base
	if opts.MatrixPath != "" {
		cfg.Input.MatrixPath = opts.MatrixPath
	}
	if opts.AnnotationsPath != "" {
		cfg.Input.AnnotationsPath = opts.AnnotationsPath
	}
	if opts.CategoriesPath != "" {
		cfg.Input.CategoriesPath = opts.CategoriesPath
	}
	if opts.OutputPath != "" {
		cfg.Output.Path = opts.OutputPath
	}
	if opts.Format != "" {
		cfg.Output.Format = opts.Format
	}
	if opts.ConditionA != "" {
		cfg.Analysis.ConditionA = opts.ConditionA
	}
	if opts.ConditionB != "" {
		cfg.Analysis.ConditionB = opts.ConditionB
	}
	if len(opts.Genes) > 0 {
		cfg.Analysis.Genes = opts.Genes
	}
	if len(opts.Clusters) > 0 {
		cfg.Analysis.Clusters = opts.Clusters
	}
	return &cfg
}

func loadInputs(in config.InputConfig) (analysis.Inputs, error) {
	var inputs analysis.Inputs

	if in.MatrixPath == "" || in.AnnotationsPath == "" || in.CategoriesPath == "" {
		return inputs, errors.MalformedInput("matrix, annotations, and categories paths are all required")
	}

	matrix, err := expression.LoadMatrixTSV(in.MatrixPath)
	if err != nil {
		return inputs, err
	}
	annotations, err := expression.LoadAnnotationsTSV(in.AnnotationsPath)
	if err != nil {
		return inputs, err
	}
	categories, err := category.LoadTSV(in.CategoriesPath)
	if err != nil {
		return inputs, err
	}

	inputs.Matrix = matrix
	inputs.Annotations = annotations
	inputs.Categories = categories
	return inputs, nil
}

func buildRequest(a config.AnalysisConfig) analysis.Request {
	req := analysis.Request{
		ConditionA: common.Condition(a.ConditionA),
		ConditionB: common.Condition(a.ConditionB),
		Thresholds: differential.Thresholds{
			Prevalence: a.PrevalenceThreshold,
			FoldChange: a.FoldChangeThreshold,
		},
		Pseudocount:      a.Pseudocount,
		MinCellsPerGroup: a.MinCellsPerGroup,
		Test:             a.Test,
		Concurrency:      a.Concurrency,
		AdjustPValues:    a.AdjustPValues,
	}
	for _, g := range a.Genes {
		req.Genes = append(req.Genes, common.GeneID(g))
	}
	for _, c := range a.Clusters {
		req.Clusters = append(req.Clusters, common.ClusterID(c))
	}
	return req
}

// writeTable sends the exported table to path, or stdout when path is empty.
func writeTable(path string, data []byte) error {
	if path == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return errors.Wrap(err, errors.CodeExportFailed, "writing table to stdout")
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.CodeExportFailed, "writing table to %s", path)
	}
	return nil
}

func persistResult(ctx context.Context, cfg *config.Config, log logging.Logger, metrics *prometheus.PipelineMetrics, result *analysis.Result) error {
	if err := postgres.Migrate(cfg.Database, log); err != nil {
		return err
	}
	pool, err := postgres.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repositories.NewSummaryRepository(pool, log, metrics)
	meta := repositories.RunMeta{
		ConditionA:      common.Condition(cfg.Analysis.ConditionA),
		ConditionB:      common.Condition(cfg.Analysis.ConditionB),
		GenesConfigured: len(cfg.Analysis.Genes),
	}
	if err := repo.SaveResult(ctx, result, meta); err != nil {
		return err
	}
	log.Info("run persisted", logging.String("run_id", string(result.RunID)))
	return nil
}

func uploadArtifact(ctx context.Context, cfg *config.Config, log logging.Logger, metrics *prometheus.PipelineMetrics, result *analysis.Result, table []byte) error {
	store, err := minio.NewArtifactStore(cfg.Storage, log, metrics)
	if err != nil {
		return err
	}
	_, err = store.Upload(ctx, result.RunID, cfg.Output.Format, table)
	return err
}

// initMetrics builds the pipeline metrics and, when an address is
// configured, exposes them over HTTP for the duration of the run.
func initMetrics(cfg config.MetricsConfig, log logging.Logger) (*prometheus.PipelineMetrics, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics collector initialization failed: %w", err)
	}
	metrics := prometheus.NewPipelineMetrics(collector)

	if cfg.Addr == "" {
		return metrics, func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics listener stopped", logging.Err(err))
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
	return metrics, stop, nil
}
