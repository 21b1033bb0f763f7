package expression

import (
	"fmt"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Profile is mean (linear-scale) expression per gene per cluster within one
// condition.  Every configured gene has an entry for every configured
// cluster; a cluster with no cells contributes a mean of 0, never a missing
// key.
type Profile map[common.GeneID]map[common.ClusterID]float64

// Row returns one gene's per-cluster means.
func (p Profile) Row(gene common.GeneID) (map[common.ClusterID]float64, bool) {
	row, ok := p[gene]
	return row, ok
}

// Aggregator reduces a cell-level matrix to a Profile.
type Aggregator struct{}

// NewAggregator returns an Aggregator.
func NewAggregator() *Aggregator { return &Aggregator{} }

// Profile averages expression over the cells of each (cluster, condition)
// group.  Averaging happens on the natural (linear) scale; the matrix is
// required to hold de-logged values.  Unknown genes are fatal since the run
// was configured against data the store cannot supply.
func (ag *Aggregator) Profile(
	m *Matrix,
	a *Annotations,
	condition common.Condition,
	genes []common.GeneID,
	clusters []common.ClusterID,
) (Profile, error) {
	if err := checkAligned(m, a); err != nil {
		return nil, err
	}
	if len(genes) == 0 {
		return nil, errors.InvalidParam("gene set is empty")
	}
	if len(clusters) == 0 {
		return nil, errors.InvalidParam("cluster set is empty")
	}

	cols := make([]int, len(genes))
	for i, g := range genes {
		col := m.column(g)
		if col < 0 {
			return nil, errors.New(errors.CodeUnknownGene,
				fmt.Sprintf("configured gene %q is not in the expression matrix", g))
		}
		cols[i] = col
	}

	// Group cell rows by cluster for the requested condition in one pass.
	byCluster := make(map[common.ClusterID][]int, len(clusters))
	for i := 0; i < a.Len(); i++ {
		c := a.At(i)
		if c.Condition == condition {
			byCluster[c.Cluster] = append(byCluster[c.Cluster], i)
		}
	}

	profile := make(Profile, len(genes))
	for gi, g := range genes {
		row := make(map[common.ClusterID]float64, len(clusters))
		for _, cl := range clusters {
			cells := byCluster[cl]
			if len(cells) == 0 {
				row[cl] = 0
				continue
			}
			var sum float64
			for _, cell := range cells {
				sum += m.at(cell, cols[gi])
			}
			row[cl] = sum / float64(len(cells))
		}
		profile[g] = row
	}
	return profile, nil
}
