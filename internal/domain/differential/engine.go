package differential

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tessellabio/concentra/internal/domain/expression"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Record is the per (gene, cluster) outcome of comparing condition A against
// condition B restricted to that cluster's cells.
type Record struct {
	Gene    common.GeneID
	Cluster common.ClusterID

	// Log2FoldChange of mean expression, condition A over condition B,
	// computed with a pseudocount on both means.
	Log2FoldChange float64

	// PctA and PctB are the fractions of cells with non-zero expression in
	// each condition.
	PctA float64
	PctB float64

	// PValue is two-sided and informational; no filter consumes it.
	PValue float64

	// Test names the test family that produced PValue.
	Test string
}

// ClusterSkip records a cluster/condition combination that could not be
// compared, for exclusion accounting.
type ClusterSkip struct {
	Cluster common.ClusterID
	Reason  string
}

// Params controls a differential comparison.  The same Params must be used
// for every cluster in a run so p-values are comparable.
type Params struct {
	Pseudocount      float64
	MinCellsPerGroup int
	Test             string
	Concurrency      int
}

// Validate rejects parameter combinations the engine cannot honour.
func (p Params) Validate() error {
	if p.Pseudocount <= 0 {
		return errors.InvalidParam(fmt.Sprintf("pseudocount must be > 0, got %g", p.Pseudocount))
	}
	if p.MinCellsPerGroup < 1 {
		return errors.InvalidParam(fmt.Sprintf("min cells per group must be >= 1, got %d", p.MinCellsPerGroup))
	}
	if p.Test != TestRankSum {
		return errors.New(errors.CodeUnsupportedTest,
			fmt.Sprintf("test family %q is not supported, expected %q", p.Test, TestRankSum))
	}
	if p.Concurrency < 1 {
		return errors.InvalidParam(fmt.Sprintf("concurrency must be >= 1, got %d", p.Concurrency))
	}
	return nil
}

// Engine runs condition comparisons against an expression store.
type Engine struct {
	store  expression.Store
	params Params
}

// NewEngine validates params and returns an Engine.
func NewEngine(store expression.Store, params Params) (*Engine, error) {
	if store == nil {
		return nil, errors.InvalidParam("expression store is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{store: store, params: params}, nil
}

// Compare produces one Record per gene for a single cluster.  A cluster with
// fewer than MinCellsPerGroup cells in either condition cannot be compared
// and yields a DIFF_001 error; callers treat that as a skipped cluster, not
// a failed run.
func (e *Engine) Compare(
	cluster common.ClusterID,
	condA, condB common.Condition,
	genes []common.GeneID,
) ([]Record, error) {
	records := make([]Record, 0, len(genes))
	for _, gene := range genes {
		valuesA, err := e.store.CellValues(gene, cluster, condA)
		if err != nil {
			return nil, err
		}
		valuesB, err := e.store.CellValues(gene, cluster, condB)
		if err != nil {
			return nil, err
		}
		if len(valuesA) < e.params.MinCellsPerGroup || len(valuesB) < e.params.MinCellsPerGroup {
			return nil, errors.New(errors.CodeMissingDifferentialData,
				fmt.Sprintf("cluster %q has %d/%d cells in %q/%q, need %d per group",
					cluster, len(valuesA), len(valuesB), condA, condB, e.params.MinCellsPerGroup))
		}

		p, err := RankSumP(valuesA, valuesB)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			Gene:           gene,
			Cluster:        cluster,
			Log2FoldChange: log2FoldChange(mean(valuesA), mean(valuesB), e.params.Pseudocount),
			PctA:           prevalence(valuesA),
			PctB:           prevalence(valuesB),
			PValue:         p,
			Test:           e.params.Test,
		})
	}
	return records, nil
}

// CompareAll compares every cluster, running clusters in parallel under a
// bounded worker pool.  Clusters that cannot be compared are collected as
// skips; any other error cancels outstanding work and fails the call.
// Records are returned in deterministic order: by cluster input order, then
// gene input order.
func (e *Engine) CompareAll(
	ctx context.Context,
	clusters []common.ClusterID,
	condA, condB common.Condition,
	genes []common.GeneID,
) ([]Record, []ClusterSkip, error) {
	type clusterResult struct {
		records []Record
		skip    *ClusterSkip
		err     error
	}

	results := make([]clusterResult, len(clusters))
	sem := make(chan struct{}, e.params.Concurrency)
	var wg sync.WaitGroup

	for i, cluster := range clusters {
		wg.Add(1)
		go func(idx int, cl common.ClusterID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[idx] = clusterResult{err: err}
				return
			}
			records, err := e.Compare(cl, condA, condB, genes)
			if err != nil {
				if errors.IsCode(err, errors.CodeMissingDifferentialData) {
					results[idx] = clusterResult{skip: &ClusterSkip{Cluster: cl, Reason: err.Error()}}
					return
				}
				results[idx] = clusterResult{err: err}
				return
			}
			results[idx] = clusterResult{records: records}
		}(i, cluster)
	}
	wg.Wait()

	var all []Record
	var skips []ClusterSkip
	for _, r := range results {
		if r.err != nil {
			return nil, nil, r.err
		}
		if r.skip != nil {
			skips = append(skips, *r.skip)
			continue
		}
		all = append(all, r.records...)
	}
	return all, skips, nil
}

// ByGene groups records by gene, preserving record order within each gene.
func ByGene(records []Record) map[common.GeneID][]Record {
	out := make(map[common.GeneID][]Record)
	for _, r := range records {
		out[r.Gene] = append(out[r.Gene], r)
	}
	return out
}

// SortRecords orders records by gene then cluster for stable output.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Gene != records[j].Gene {
			return records[i].Gene < records[j].Gene
		}
		return records[i].Cluster < records[j].Cluster
	})
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func prevalence(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var nonzero int
	for _, v := range values {
		if v > 0 {
			nonzero++
		}
	}
	return float64(nonzero) / float64(len(values))
}

func log2FoldChange(meanA, meanB, pseudocount float64) float64 {
	return math.Log2((meanA + pseudocount) / (meanB + pseudocount))
}
