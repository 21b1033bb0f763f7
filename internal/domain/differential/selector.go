package differential

import (
	"fmt"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Thresholds are the induction filter parameters.
type Thresholds struct {
	// Prevalence is the minimum (exclusive) fraction of condition-A cells
	// expressing the gene.
	Prevalence float64

	// FoldChange is the minimum (exclusive) log2 fold change.
	FoldChange float64
}

// DefaultThresholds returns the standard induction filter.
func DefaultThresholds() Thresholds {
	return Thresholds{Prevalence: 0.05, FoldChange: 0.25}
}

// MaxInduction selects, for one gene, the record with the largest log2 fold
// change among those passing the filter PctA > Prevalence and
// Log2FoldChange > FoldChange.  Both comparisons are strict.  When no record
// passes, a DIFF_002 error marks the gene for exclusion; absence of
// induction evidence is an expected per-gene outcome, not a failure.
//
// Ties on fold change resolve to the lexicographically smallest ClusterID so
// selection is deterministic across runs.
func MaxInduction(gene common.GeneID, records []Record, th Thresholds) (Record, error) {
	var best Record
	found := false
	for _, r := range records {
		if r.Gene != gene {
			continue
		}
		if r.PctA <= th.Prevalence || r.Log2FoldChange <= th.FoldChange {
			continue
		}
		if !found ||
			r.Log2FoldChange > best.Log2FoldChange ||
			(r.Log2FoldChange == best.Log2FoldChange && r.Cluster < best.Cluster) {
			best = r
			found = true
		}
	}
	if !found {
		return Record{}, errors.New(errors.CodeNoInductionEvidence,
			fmt.Sprintf("no cluster passes the induction filter for gene %q", gene))
	}
	return best, nil
}

// SelectAll applies MaxInduction to every gene with at least one record.
// Genes without induction evidence are returned separately for accounting.
func SelectAll(records []Record, th Thresholds) (map[common.GeneID]Record, []common.GeneID) {
	byGene := ByGene(records)
	selected := make(map[common.GeneID]Record, len(byGene))
	var excluded []common.GeneID
	for gene, recs := range byGene {
		best, err := MaxInduction(gene, recs, th)
		if err != nil {
			excluded = append(excluded, gene)
			continue
		}
		selected[gene] = best
	}
	return selected, common.SortGenes(excluded)
}
