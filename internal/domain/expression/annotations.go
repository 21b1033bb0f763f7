package expression

import (
	"fmt"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// CellAnnotation labels one matrix row with its cluster and condition.
type CellAnnotation struct {
	Cluster   common.ClusterID
	Condition common.Condition
}

// Annotations maps every matrix row to a cluster and a condition.  Row i of
// the matrix is described by entry i here; the two structures are only valid
// together when their lengths match.
type Annotations struct {
	cells []CellAnnotation
}

// NewAnnotations validates per-cell labels.  Empty cluster or condition
// labels are rejected.
func NewAnnotations(cells []CellAnnotation) (*Annotations, error) {
	for i, c := range cells {
		if c.Cluster == "" {
			return nil, errors.MalformedInput(fmt.Sprintf("cell %d has an empty cluster label", i))
		}
		if c.Condition == "" {
			return nil, errors.MalformedInput(fmt.Sprintf("cell %d has an empty condition label", i))
		}
	}
	return &Annotations{cells: append([]CellAnnotation(nil), cells...)}, nil
}

// Len returns the number of annotated cells.
func (a *Annotations) Len() int { return len(a.cells) }

// At returns the annotation for cell row i.
func (a *Annotations) At(i int) CellAnnotation { return a.cells[i] }

// Clusters returns the distinct cluster labels in first-seen order.
func (a *Annotations) Clusters() []common.ClusterID {
	seen := make(map[common.ClusterID]bool)
	var out []common.ClusterID
	for _, c := range a.cells {
		if !seen[c.Cluster] {
			seen[c.Cluster] = true
			out = append(out, c.Cluster)
		}
	}
	return out
}

// Conditions returns the distinct condition labels in first-seen order.
func (a *Annotations) Conditions() []common.Condition {
	seen := make(map[common.Condition]bool)
	var out []common.Condition
	for _, c := range a.cells {
		if !seen[c.Condition] {
			seen[c.Condition] = true
			out = append(out, c.Condition)
		}
	}
	return out
}

// CellsIn returns the matrix row indices belonging to cluster under condition.
func (a *Annotations) CellsIn(cluster common.ClusterID, condition common.Condition) []int {
	var out []int
	for i, c := range a.cells {
		if c.Cluster == cluster && c.Condition == condition {
			out = append(out, i)
		}
	}
	return out
}

// checkAligned verifies that annotations cover exactly the matrix rows.
func checkAligned(m *Matrix, a *Annotations) error {
	if m == nil || a == nil {
		return errors.InvalidParam("matrix and annotations are required")
	}
	if m.Cells() != a.Len() {
		return errors.New(errors.CodeAnnotationMismatch,
			fmt.Sprintf("matrix has %d cells but annotations describe %d", m.Cells(), a.Len()))
	}
	return nil
}
