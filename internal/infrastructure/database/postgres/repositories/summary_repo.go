// Package repositories persists completed analysis runs and their summary
// rows.
package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tessellabio/concentra/internal/application/analysis"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/prometheus"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// RunMeta describes the run being persisted alongside its rows.
type RunMeta struct {
	ConditionA      common.Condition
	ConditionB      common.Condition
	GenesConfigured int
}

// RunSummary is one persisted run header.
type RunSummary struct {
	RunID           common.RunID
	ConditionA      common.Condition
	ConditionB      common.Condition
	GenesConfigured int
	GenesReported   int
	CreatedAt       time.Time
}

// SummaryRepository stores runs and summary rows in PostgreSQL.
type SummaryRepository struct {
	db      db
	log     logging.Logger
	metrics *prometheus.PipelineMetrics
}

// NewSummaryRepository wires a SummaryRepository.  metrics may be nil.
func NewSummaryRepository(pool db, log logging.Logger, metrics *prometheus.PipelineMetrics) *SummaryRepository {
	return &SummaryRepository{db: pool, log: log, metrics: metrics}
}

const insertRunSQL = `
	INSERT INTO analysis_runs (
		run_id, condition_a, condition_b, genes_configured, genes_reported
	) VALUES ($1, $2, $3, $4, $5)
`

const insertRowSQL = `
	INSERT INTO summary_rows (
		run_id, gene, category, concentration_score, log2_fold_change,
		cluster_of_max_induction, pct_expressing, p_value
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// SaveResult persists the run header and every summary row in one
// transaction.  A failure rolls everything back; a run is never half
// persisted.
func (r *SummaryRepository) SaveResult(ctx context.Context, result *analysis.Result, meta RunMeta) error {
	if result == nil {
		return errors.InvalidParam("result is required")
	}
	start := time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertRunSQL,
		string(result.RunID), string(meta.ConditionA), string(meta.ConditionB),
		meta.GenesConfigured, len(result.Rows))
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "inserting run")
	}

	for _, row := range result.Rows {
		_, err = tx.Exec(ctx, insertRowSQL,
			string(result.RunID), string(row.Gene), string(row.Category),
			row.ConcentrationScore, row.Log2FoldChange,
			string(row.Cluster), row.PctExpressing, row.PValue)
		if err != nil {
			return errors.Wrap(err, errors.CodeDatabaseError, "inserting summary row")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "committing run")
	}
	r.observe("save_result", start)
	r.log.Info("run persisted",
		logging.String("run_id", string(result.RunID)),
		logging.Int("rows", len(result.Rows)))
	return nil
}

// GetRun fetches one persisted run header.
func (r *SummaryRepository) GetRun(ctx context.Context, runID common.RunID) (*RunSummary, error) {
	start := time.Now()
	const query = `
		SELECT run_id, condition_a, condition_b, genes_configured, genes_reported, created_at
		FROM analysis_runs WHERE run_id = $1
	`
	var s RunSummary
	var id, condA, condB string
	err := r.db.QueryRow(ctx, query, string(runID)).Scan(
		&id, &condA, &condB,
		&s.GenesConfigured, &s.GenesReported, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("run " + string(runID) + " not found")
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "fetching run")
	}
	s.RunID = common.RunID(id)
	s.ConditionA = common.Condition(condA)
	s.ConditionB = common.Condition(condB)
	r.observe("get_run", start)
	return &s, nil
}

// ListRows returns the persisted summary rows of a run in export order:
// concentration score descending, then gene.
func (r *SummaryRepository) ListRows(ctx context.Context, runID common.RunID) ([]analysis.SummaryRow, error) {
	start := time.Now()
	const query = `
		SELECT gene, category, concentration_score, log2_fold_change,
		       cluster_of_max_induction, pct_expressing, p_value
		FROM summary_rows
		WHERE run_id = $1
		ORDER BY concentration_score DESC, gene ASC
	`
	rows, err := r.db.Query(ctx, query, string(runID))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "querying summary rows")
	}
	defer rows.Close()

	var out []analysis.SummaryRow
	for rows.Next() {
		var row analysis.SummaryRow
		var gene, cat, cluster string
		if err := rows.Scan(
			&gene, &cat, &row.ConcentrationScore, &row.Log2FoldChange,
			&cluster, &row.PctExpressing, &row.PValue); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "scanning summary row")
		}
		row.Gene = common.GeneID(gene)
		row.Category = common.CategoryLabel(cat)
		row.Cluster = common.ClusterID(cluster)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "iterating summary rows")
	}
	r.observe("list_rows", start)
	return out, nil
}

func (r *SummaryRepository) observe(operation string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
