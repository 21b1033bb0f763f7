package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// testMatrix builds a 6-cell, 2-gene matrix with two clusters under two
// conditions.  Layout (gene order IL2, IFNG):
//
//	cell  cluster  condition    IL2  IFNG
//	0     c1       stimulated   10   0
//	1     c1       stimulated   20   0
//	2     c1       control      1    0
//	3     c2       stimulated   0    6
//	4     c2       control      0    2
//	5     c2       control      0    4
func testMatrix(t *testing.T) (*Matrix, *Annotations) {
	t.Helper()
	m, err := NewMatrix(
		[]common.GeneID{"IL2", "IFNG"},
		[][]float64{
			{10, 0},
			{20, 0},
			{1, 0},
			{0, 6},
			{0, 2},
			{0, 4},
		},
	)
	require.NoError(t, err)

	a, err := NewAnnotations([]CellAnnotation{
		{Cluster: "c1", Condition: "stimulated"},
		{Cluster: "c1", Condition: "stimulated"},
		{Cluster: "c1", Condition: "control"},
		{Cluster: "c2", Condition: "stimulated"},
		{Cluster: "c2", Condition: "control"},
		{Cluster: "c2", Condition: "control"},
	})
	require.NoError(t, err)
	return m, a
}

func TestNewMatrix_Validation(t *testing.T) {
	tests := []struct {
		name     string
		genes    []common.GeneID
		rows     [][]float64
		wantCode errors.ErrorCode
	}{
		{
			name:     "no genes",
			genes:    nil,
			rows:     nil,
			wantCode: errors.CodeMalformedInput,
		},
		{
			name:     "duplicate gene",
			genes:    []common.GeneID{"IL2", "IL2"},
			rows:     nil,
			wantCode: errors.CodeMalformedInput,
		},
		{
			name:     "ragged row",
			genes:    []common.GeneID{"IL2", "IFNG"},
			rows:     [][]float64{{1}},
			wantCode: errors.CodeMalformedMatrix,
		},
		{
			name:     "negative expression",
			genes:    []common.GeneID{"IL2"},
			rows:     [][]float64{{-1}},
			wantCode: errors.CodeMalformedMatrix,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatrix(tt.genes, tt.rows)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestMatrix_Value(t *testing.T) {
	m, _ := testMatrix(t)

	v, err := m.Value(1, "IL2")
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)

	_, err = m.Value(0, "GZMB")
	assert.True(t, errors.IsCode(err, errors.CodeUnknownGene))

	_, err = m.Value(99, "IL2")
	assert.Error(t, err)
}

func TestAnnotations_AlignmentChecked(t *testing.T) {
	m, _ := testMatrix(t)
	short, err := NewAnnotations([]CellAnnotation{{Cluster: "c1", Condition: "stimulated"}})
	require.NoError(t, err)

	_, err = NewAggregator().Profile(m, short, "stimulated",
		[]common.GeneID{"IL2"}, []common.ClusterID{"c1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAnnotationMismatch))
}

func TestAggregator_Profile_LinearMeans(t *testing.T) {
	m, a := testMatrix(t)

	profile, err := NewAggregator().Profile(m, a, "stimulated",
		[]common.GeneID{"IL2", "IFNG"}, []common.ClusterID{"c1", "c2"})
	require.NoError(t, err)

	// c1 stimulated cells carry IL2 10 and 20: linear mean 15.
	assert.InDelta(t, 15.0, profile["IL2"]["c1"], 1e-12)
	assert.InDelta(t, 0.0, profile["IL2"]["c2"], 1e-12)
	assert.InDelta(t, 0.0, profile["IFNG"]["c1"], 1e-12)
	assert.InDelta(t, 6.0, profile["IFNG"]["c2"], 1e-12)
}

func TestAggregator_Profile_EmptyClusterYieldsZero(t *testing.T) {
	m, a := testMatrix(t)

	profile, err := NewAggregator().Profile(m, a, "stimulated",
		[]common.GeneID{"IL2"}, []common.ClusterID{"c1", "c9"})
	require.NoError(t, err)

	// c9 has no cells: its mean is present and exactly 0.
	row, ok := profile.Row("IL2")
	require.True(t, ok)
	v, present := row["c9"]
	require.True(t, present, "empty cluster must contribute 0, not absence")
	assert.Equal(t, 0.0, v)
}

func TestAggregator_Profile_UnknownGeneIsFatal(t *testing.T) {
	m, a := testMatrix(t)

	_, err := NewAggregator().Profile(m, a, "stimulated",
		[]common.GeneID{"GZMB"}, []common.ClusterID{"c1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnknownGene))
	assert.True(t, errors.IsFatal(err))
}

func TestMatrixStore_MeanExpression(t *testing.T) {
	m, a := testMatrix(t)
	store, err := NewMatrixStore(m, a)
	require.NoError(t, err)

	mean, err := store.MeanExpression("IFNG", "c2", "control")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, mean, 1e-12)

	mean, err = store.MeanExpression("IL2", "c2", "stimulated")
	require.NoError(t, err)
	assert.Equal(t, 0.0, mean)
}

func TestMatrixStore_CellValues(t *testing.T) {
	m, a := testMatrix(t)
	store, err := NewMatrixStore(m, a)
	require.NoError(t, err)

	values, err := store.CellValues("IL2", "c1", "stimulated")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, values)

	// No cells for this combination: empty, not an error.
	values, err = store.CellValues("IL2", "c9", "stimulated")
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = store.CellValues("GZMB", "c1", "stimulated")
	assert.True(t, errors.IsCode(err, errors.CodeUnknownGene))
}
