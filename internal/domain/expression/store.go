package expression

import (
	"fmt"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Store is the expression data source consumed by the differential engine.
// Implementations must treat requests for genes, clusters, or conditions
// outside the run's configured sets as malformed input, not as empty data.
type Store interface {
	// MeanExpression returns the linear-scale mean expression of gene over
	// the cells of cluster under condition.  A cluster with no matching
	// cells yields 0 with no error.
	MeanExpression(gene common.GeneID, cluster common.ClusterID, condition common.Condition) (float64, error)

	// CellValues returns the per-cell expression values of gene over the
	// cells of cluster under condition, in stable row order.  An empty
	// slice means the cluster has no cells under that condition.
	CellValues(gene common.GeneID, cluster common.ClusterID, condition common.Condition) ([]float64, error)
}

// MatrixStore implements Store over an in-memory Matrix and Annotations.
// Cell groupings are indexed once at construction; lookups afterwards are
// read-only, so a MatrixStore is safe for concurrent use.
type MatrixStore struct {
	matrix *Matrix
	groups map[groupKey][]int
}

type groupKey struct {
	cluster   common.ClusterID
	condition common.Condition
}

// NewMatrixStore indexes matrix rows by (cluster, condition).
func NewMatrixStore(m *Matrix, a *Annotations) (*MatrixStore, error) {
	if err := checkAligned(m, a); err != nil {
		return nil, err
	}
	groups := make(map[groupKey][]int)
	for i := 0; i < a.Len(); i++ {
		c := a.At(i)
		k := groupKey{cluster: c.Cluster, condition: c.Condition}
		groups[k] = append(groups[k], i)
	}
	return &MatrixStore{matrix: m, groups: groups}, nil
}

// MeanExpression implements Store.
func (s *MatrixStore) MeanExpression(gene common.GeneID, cluster common.ClusterID, condition common.Condition) (float64, error) {
	values, err := s.CellValues(gene, cluster, condition)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// CellValues implements Store.
func (s *MatrixStore) CellValues(gene common.GeneID, cluster common.ClusterID, condition common.Condition) ([]float64, error) {
	col := s.matrix.column(gene)
	if col < 0 {
		return nil, errors.New(errors.CodeUnknownGene,
			fmt.Sprintf("gene %q is not in the expression matrix", gene))
	}
	cells := s.groups[groupKey{cluster: cluster, condition: condition}]
	if len(cells) == 0 {
		return nil, nil
	}
	out := make([]float64, len(cells))
	for i, cell := range cells {
		out[i] = s.matrix.at(cell, col)
	}
	return out, nil
}
