package differential

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellabio/concentra/internal/domain/expression"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

func testParams() Params {
	return Params{
		Pseudocount:      1,
		MinCellsPerGroup: 2,
		Test:             TestRankSum,
		Concurrency:      4,
	}
}

// testStore builds a store with two clusters.  Cluster c1 has 4 stimulated
// and 4 control cells; cluster c2 has 2 stimulated cells and no control
// cells, so it cannot be compared.
func testStore(t *testing.T) expression.Store {
	t.Helper()
	m, err := expression.NewMatrix(
		[]common.GeneID{"IL2", "FLAT"},
		[][]float64{
			// c1 stimulated: IL2 strongly induced, FLAT constant.
			{6, 2}, {8, 2}, {10, 2}, {12, 2},
			// c1 control
			{0, 2}, {1, 2}, {0, 2}, {1, 2},
			// c2 stimulated
			{3, 2}, {3, 2},
		},
	)
	require.NoError(t, err)

	cells := make([]expression.CellAnnotation, 0, 10)
	for i := 0; i < 4; i++ {
		cells = append(cells, expression.CellAnnotation{Cluster: "c1", Condition: "stimulated"})
	}
	for i := 0; i < 4; i++ {
		cells = append(cells, expression.CellAnnotation{Cluster: "c1", Condition: "control"})
	}
	for i := 0; i < 2; i++ {
		cells = append(cells, expression.CellAnnotation{Cluster: "c2", Condition: "stimulated"})
	}
	a, err := expression.NewAnnotations(cells)
	require.NoError(t, err)

	store, err := expression.NewMatrixStore(m, a)
	require.NoError(t, err)
	return store
}

func TestNewEngine_Validation(t *testing.T) {
	store := testStore(t)

	_, err := NewEngine(nil, testParams())
	assert.Error(t, err)

	bad := testParams()
	bad.Test = "ttest"
	_, err = NewEngine(store, bad)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnsupportedTest))

	bad = testParams()
	bad.Pseudocount = 0
	_, err = NewEngine(store, bad)
	assert.Error(t, err)
}

func TestCompare_ComputesRecordFields(t *testing.T) {
	engine, err := NewEngine(testStore(t), testParams())
	require.NoError(t, err)

	records, err := engine.Compare("c1", "stimulated", "control", []common.GeneID{"IL2", "FLAT"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	il2 := records[0]
	assert.Equal(t, common.GeneID("IL2"), il2.Gene)
	assert.Equal(t, common.ClusterID("c1"), il2.Cluster)
	// Means: stimulated 9, control 0.5; log2((9+1)/(0.5+1)) = log2(10/1.5).
	assert.InDelta(t, math.Log2(10.0/1.5), il2.Log2FoldChange, 1e-12)
	assert.Equal(t, 1.0, il2.PctA, "all stimulated cells express IL2")
	assert.Equal(t, 0.5, il2.PctB, "half the control cells express IL2")
	assert.Greater(t, il2.PValue, 0.0)
	assert.Less(t, il2.PValue, 0.2)
	assert.Equal(t, TestRankSum, il2.Test)

	flat := records[1]
	assert.InDelta(t, 0.0, flat.Log2FoldChange, 1e-12)
	assert.Equal(t, 1.0, flat.PValue, "constant gene carries no signal")
}

func TestCompare_InsufficientCells(t *testing.T) {
	engine, err := NewEngine(testStore(t), testParams())
	require.NoError(t, err)

	_, err = engine.Compare("c2", "stimulated", "control", []common.GeneID{"IL2"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingDifferentialData))
	assert.False(t, errors.IsFatal(err))
}

func TestCompareAll_SkipsUncomparableClusters(t *testing.T) {
	engine, err := NewEngine(testStore(t), testParams())
	require.NoError(t, err)

	records, skips, err := engine.CompareAll(context.Background(),
		[]common.ClusterID{"c1", "c2"}, "stimulated", "control",
		[]common.GeneID{"IL2", "FLAT"})
	require.NoError(t, err)

	assert.Len(t, records, 2, "only c1 is comparable")
	require.Len(t, skips, 1)
	assert.Equal(t, common.ClusterID("c2"), skips[0].Cluster)
}

func TestCompareAll_DeterministicOrder(t *testing.T) {
	engine, err := NewEngine(testStore(t), testParams())
	require.NoError(t, err)

	first, _, err := engine.CompareAll(context.Background(),
		[]common.ClusterID{"c1"}, "stimulated", "control",
		[]common.GeneID{"IL2", "FLAT"})
	require.NoError(t, err)

	second, _, err := engine.CompareAll(context.Background(),
		[]common.ClusterID{"c1"}, "stimulated", "control",
		[]common.GeneID{"IL2", "FLAT"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompareAll_ContextCancelled(t *testing.T) {
	engine, err := NewEngine(testStore(t), testParams())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = engine.CompareAll(ctx,
		[]common.ClusterID{"c1"}, "stimulated", "control", []common.GeneID{"IL2"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompareAll_UnknownGeneFails(t *testing.T) {
	engine, err := NewEngine(testStore(t), testParams())
	require.NoError(t, err)

	_, _, err = engine.CompareAll(context.Background(),
		[]common.ClusterID{"c1"}, "stimulated", "control", []common.GeneID{"GZMB"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnknownGene))
}
