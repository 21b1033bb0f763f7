// Package analysis orchestrates one scoring-and-join run: aggregate cell
// expression, score concentration, run differential comparisons, select
// max-induction clusters, and inner-join everything with the category
// lookup into the final summary table.
package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/tessellabio/concentra/internal/domain/category"
	"github.com/tessellabio/concentra/internal/domain/concentration"
	"github.com/tessellabio/concentra/internal/domain/differential"
	"github.com/tessellabio/concentra/internal/domain/expression"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/prometheus"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Request carries the parameters of one run.
type Request struct {
	Genes      []common.GeneID
	Clusters   []common.ClusterID
	ConditionA common.Condition
	ConditionB common.Condition

	Thresholds       differential.Thresholds
	Pseudocount      float64
	MinCellsPerGroup int
	Test             string
	Concurrency      int

	// AdjustPValues applies Benjamini-Hochberg across all differential
	// records before selection.  Adjusted p-values remain informational;
	// no filter consumes them.
	AdjustPValues bool
}

// Inputs are the three data sources of a run.
type Inputs struct {
	Matrix      *expression.Matrix
	Annotations *expression.Annotations
	Categories  category.Lookup
}

// SummaryRow is one line of the final table.
type SummaryRow struct {
	Gene               common.GeneID        `json:"gene"`
	Category           common.CategoryLabel `json:"category"`
	ConcentrationScore float64              `json:"concentration_score"`
	Log2FoldChange     float64              `json:"log2_fold_change"`
	Cluster            common.ClusterID     `json:"cluster_of_max_induction"`
	PctExpressing      float64              `json:"pct_expressing"`
	PValue             float64              `json:"p_value"`
}

// Exclusions accounts for every gene and cluster dropped during a run.
// Exclusion is the normal recovery path for per-entity conditions; the final
// table is silent about them, so this record is the only place they surface.
type Exclusions struct {
	UndefinedScore      []common.GeneID
	NoInductionEvidence []common.GeneID
	MissingCategory     []common.GeneID
	SkippedClusters     []differential.ClusterSkip
}

// Genes returns the number of distinct excluded genes.
func (e Exclusions) Genes() int {
	return len(e.UndefinedScore) + len(e.NoInductionEvidence) + len(e.MissingCategory)
}

// Result is the outcome of a completed run.
type Result struct {
	RunID      common.RunID
	Rows       []SummaryRow
	Exclusions Exclusions
	Elapsed    time.Duration
}

// Service runs analyses.  Construct with NewService; the zero value is not
// usable.
type Service struct {
	aggregator *expression.Aggregator
	logger     logging.Logger
	metrics    *prometheus.PipelineMetrics
}

// NewService wires a Service.  metrics may be nil when metrics are disabled.
func NewService(logger logging.Logger, metrics *prometheus.PipelineMetrics) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		aggregator: expression.NewAggregator(),
		logger:     logger.Named("analysis"),
		metrics:    metrics,
	}
}

func (r Request) validate() error {
	if len(r.Genes) == 0 {
		return errors.InvalidParam("gene set is empty")
	}
	if r.ConditionA == "" || r.ConditionB == "" {
		return errors.InvalidParam("both condition labels are required")
	}
	if r.ConditionA == r.ConditionB {
		return errors.InvalidParam("condition labels must differ")
	}
	return nil
}

// Run executes the pipeline.  A fatal error aborts with no partial result;
// recoverable per-gene and per-cluster conditions narrow the output and are
// reported in Result.Exclusions.
func (s *Service) Run(ctx context.Context, in Inputs, req Request) (*Result, error) {
	start := time.Now()
	if err := req.validate(); err != nil {
		s.countRun("failed", start)
		return nil, err
	}
	if in.Matrix == nil || in.Annotations == nil || in.Categories == nil {
		s.countRun("failed", start)
		return nil, errors.InvalidParam("matrix, annotations, and category lookup are required")
	}

	runID := common.NewRunID()
	log := s.logger.With(logging.String("run_id", string(runID)))

	genes := common.NewGeneSet(req.Genes...).Slice()
	clusters := req.Clusters
	if len(clusters) == 0 {
		clusters = common.SortClusters(in.Annotations.Clusters())
	}
	log.Info("starting run",
		logging.Int("genes", len(genes)),
		logging.Int("clusters", len(clusters)),
		logging.String("condition_a", string(req.ConditionA)),
		logging.String("condition_b", string(req.ConditionB)))
	if s.metrics != nil {
		s.metrics.GenesConfigured.WithLabelValues().Add(float64(len(genes)))
	}

	result, err := s.run(ctx, in, req, runID, genes, clusters, log)
	if err != nil {
		s.countRun("failed", start)
		prometheus.RecordError(s.metrics, "analysis", string(errors.GetCode(err)))
		log.Error("run failed", logging.Err(err))
		return nil, err
	}

	result.Elapsed = time.Since(start)
	s.countRun("completed", start)
	if s.metrics != nil {
		s.metrics.GenesReported.WithLabelValues().Add(float64(len(result.Rows)))
	}
	log.Info("run completed",
		logging.Int("rows", len(result.Rows)),
		logging.Int("genes_excluded", result.Exclusions.Genes()),
		logging.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (s *Service) run(
	ctx context.Context,
	in Inputs,
	req Request,
	runID common.RunID,
	genes []common.GeneID,
	clusters []common.ClusterID,
	log logging.Logger,
) (*Result, error) {
	// Stage 1: aggregate condition-A expression to per-cluster means.
	stageStart := time.Now()
	profile, err := s.aggregator.Profile(in.Matrix, in.Annotations, req.ConditionA, genes, clusters)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRunFailed, "aggregating expression")
	}
	s.recordStage("aggregate", stageStart)

	// Stage 2: concentration scores.
	stageStart = time.Now()
	scores, undefined, err := concentration.ScoreAll(profile, clusters)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRunFailed, "scoring concentration")
	}
	s.recordStage("score", stageStart)
	for range undefined {
		prometheus.RecordExclusion(s.metrics, "undefined_score")
	}

	// Stage 3: per-cluster differential comparisons.
	stageStart = time.Now()
	store, err := expression.NewMatrixStore(in.Matrix, in.Annotations)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRunFailed, "indexing expression matrix")
	}
	engine, err := differential.NewEngine(store, differential.Params{
		Pseudocount:      req.Pseudocount,
		MinCellsPerGroup: req.MinCellsPerGroup,
		Test:             req.Test,
		Concurrency:      req.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	records, skipped, err := engine.CompareAll(ctx, clusters, req.ConditionA, req.ConditionB, genes)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRunFailed, "running differential comparisons")
	}
	s.recordStage("differential", stageStart)
	if s.metrics != nil {
		s.metrics.ClustersCompared.WithLabelValues(req.Test).
			Add(float64(len(clusters) - len(skipped)))
		s.metrics.DifferentialRecords.WithLabelValues(req.Test).Add(float64(len(records)))
		for range skipped {
			s.metrics.ClustersSkipped.WithLabelValues("missing_differential_data").Inc()
		}
	}
	for _, skip := range skipped {
		log.Warn("cluster skipped",
			logging.String("cluster", string(skip.Cluster)),
			logging.String("reason", skip.Reason))
	}

	if req.AdjustPValues {
		differential.AdjustPValues(records)
	}

	// Stage 4: max-induction selection.
	stageStart = time.Now()
	selected, noEvidence := differential.SelectAll(records, req.Thresholds)
	s.recordStage("select", stageStart)
	for range noEvidence {
		prometheus.RecordExclusion(s.metrics, "no_induction_evidence")
	}

	// Stage 5: three-way inner join.
	stageStart = time.Now()
	rows, missingCategory := join(scores, selected, in.Categories)
	s.recordStage("join", stageStart)
	for range missingCategory {
		prometheus.RecordExclusion(s.metrics, "missing_category")
	}

	excl := Exclusions{
		UndefinedScore:      undefined,
		NoInductionEvidence: noEvidence,
		MissingCategory:     missingCategory,
		SkippedClusters:     skipped,
	}
	if n := excl.Genes(); n > 0 {
		log.Info("genes excluded from final table",
			logging.Int("excluded", n),
			logging.Int("configured", len(genes)),
			logging.Int("undefined_score", len(excl.UndefinedScore)),
			logging.Int("no_induction_evidence", len(excl.NoInductionEvidence)),
			logging.Int("missing_category", len(excl.MissingCategory)))
	}

	return &Result{RunID: runID, Rows: rows, Exclusions: excl}, nil
}

// join inner-joins scores, max-induction records, and category assignments.
// Only genes present in all three appear in the output; genes that have a
// score and induction evidence but no category are returned for accounting.
// Rows are ordered by concentration score descending, then gene ascending.
func join(
	scores map[common.GeneID]float64,
	selected map[common.GeneID]differential.Record,
	categories category.Lookup,
) ([]SummaryRow, []common.GeneID) {
	rows := make([]SummaryRow, 0, len(scores))
	var missingCategory []common.GeneID
	for gene, score := range scores {
		record, ok := selected[gene]
		if !ok {
			continue
		}
		label, ok := categories.Category(gene)
		if !ok {
			missingCategory = append(missingCategory, gene)
			continue
		}
		rows = append(rows, SummaryRow{
			Gene:               gene,
			Category:           label,
			ConcentrationScore: score,
			Log2FoldChange:     record.Log2FoldChange,
			Cluster:            record.Cluster,
			PctExpressing:      record.PctA,
			PValue:             record.PValue,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ConcentrationScore != rows[j].ConcentrationScore {
			return rows[i].ConcentrationScore > rows[j].ConcentrationScore
		}
		return rows[i].Gene < rows[j].Gene
	})
	return rows, common.SortGenes(missingCategory)
}

func (s *Service) countRun(status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RunsTotal.WithLabelValues(status).Inc()
	s.metrics.RunDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func (s *Service) recordStage(stage string, start time.Time) {
	prometheus.RecordStage(s.metrics, stage, time.Since(start))
}
