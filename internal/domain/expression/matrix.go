// Package expression holds the cell-level expression matrix, its cluster and
// condition annotations, and the aggregation step that reduces cells to
// per-gene per-cluster mean expression.
package expression

import (
	"fmt"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Matrix is a dense cells × genes expression matrix.  Values are normalized,
// de-logged (linear scale) expression; aggregation averages them as-is.
// A Matrix is immutable after construction.
type Matrix struct {
	genes   []common.GeneID
	geneIdx map[common.GeneID]int
	// values is row-major: values[cell*len(genes)+geneIdx].
	values []float64
	cells  int
}

// NewMatrix builds a Matrix from a gene header and per-cell rows.  Every row
// must have exactly one value per gene; gene IDs must be unique and non-empty.
func NewMatrix(genes []common.GeneID, rows [][]float64) (*Matrix, error) {
	if len(genes) == 0 {
		return nil, errors.MalformedInput("expression matrix has no genes")
	}
	geneIdx := make(map[common.GeneID]int, len(genes))
	for i, g := range genes {
		if g == "" {
			return nil, errors.MalformedInput(fmt.Sprintf("expression matrix gene column %d is empty", i))
		}
		if _, dup := geneIdx[g]; dup {
			return nil, errors.MalformedInput(fmt.Sprintf("expression matrix has duplicate gene %q", g))
		}
		geneIdx[g] = i
	}

	values := make([]float64, 0, len(rows)*len(genes))
	for r, row := range rows {
		if len(row) != len(genes) {
			return nil, errors.New(errors.CodeMalformedMatrix,
				fmt.Sprintf("row %d has %d values, expected %d", r, len(row), len(genes)))
		}
		for _, v := range row {
			if v < 0 {
				return nil, errors.New(errors.CodeMalformedMatrix,
					fmt.Sprintf("row %d contains negative expression %g", r, v))
			}
		}
		values = append(values, row...)
	}

	return &Matrix{
		genes:   append([]common.GeneID(nil), genes...),
		geneIdx: geneIdx,
		values:  values,
		cells:   len(rows),
	}, nil
}

// Genes returns the gene IDs in column order.
func (m *Matrix) Genes() []common.GeneID {
	return append([]common.GeneID(nil), m.genes...)
}

// Cells returns the number of cell rows.
func (m *Matrix) Cells() int { return m.cells }

// HasGene reports whether gene is a column of the matrix.
func (m *Matrix) HasGene(gene common.GeneID) bool {
	_, ok := m.geneIdx[gene]
	return ok
}

// Value returns the expression of gene in the given cell row.
func (m *Matrix) Value(cell int, gene common.GeneID) (float64, error) {
	if cell < 0 || cell >= m.cells {
		return 0, errors.InvalidParam(fmt.Sprintf("cell index %d out of range [0, %d)", cell, m.cells))
	}
	idx, ok := m.geneIdx[gene]
	if !ok {
		return 0, errors.New(errors.CodeUnknownGene, fmt.Sprintf("gene %q is not in the matrix", gene))
	}
	return m.values[cell*len(m.genes)+idx], nil
}

// column returns the raw column index for gene, or -1.
func (m *Matrix) column(gene common.GeneID) int {
	idx, ok := m.geneIdx[gene]
	if !ok {
		return -1
	}
	return idx
}

// at reads without bounds checks; callers validate cell and column first.
func (m *Matrix) at(cell, col int) float64 {
	return m.values[cell*len(m.genes)+col]
}
