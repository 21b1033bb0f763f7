package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellabio/concentra/internal/domain/category"
	"github.com/tessellabio/concentra/internal/domain/differential"
	"github.com/tessellabio/concentra/internal/domain/expression"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// testInputs builds a 12-cell fixture over clusters c1..c3 with conditions
// stimulated/control, two cells per group.  Gene behaviour:
//
//	X  concentrated in c1 (score 1.0), induced in c1
//	Y  uniform across clusters (score 1/3), equally induced everywhere
//	Z  silent under stimulation (undefined score)
//	W  like X but in c2, and absent from the category table
//	N  expressed but flat between conditions (no induction evidence)
func testInputs(t *testing.T) Inputs {
	t.Helper()
	genes := []common.GeneID{"X", "Y", "Z", "W", "N"}
	m, err := expression.NewMatrix(genes, [][]float64{
		// c1 stimulated
		{8, 5, 0, 0, 3},
		{12, 5, 0, 0, 3},
		// c1 control
		{0, 1, 4, 0, 3},
		{1, 1, 4, 1, 3},
		// c2 stimulated
		{0, 5, 0, 8, 0},
		{0, 5, 0, 12, 0},
		// c2 control
		{0, 1, 4, 0, 0},
		{0, 1, 4, 1, 0},
		// c3 stimulated
		{0, 5, 0, 0, 0},
		{0, 5, 0, 0, 0},
		// c3 control
		{0, 1, 4, 0, 0},
		{0, 1, 4, 0, 0},
	})
	require.NoError(t, err)

	var cells []expression.CellAnnotation
	for _, cl := range []common.ClusterID{"c1", "c2", "c3"} {
		for _, cond := range []common.Condition{"stimulated", "control"} {
			cells = append(cells,
				expression.CellAnnotation{Cluster: cl, Condition: cond},
				expression.CellAnnotation{Cluster: cl, Condition: cond})
		}
	}
	a, err := expression.NewAnnotations(cells)
	require.NoError(t, err)

	return Inputs{
		Matrix:      m,
		Annotations: a,
		Categories: category.NewMapLookup(map[common.GeneID]common.CategoryLabel{
			"X": "cytokine",
			"Y": "effector",
			"Z": "cytokine",
			"N": "cytokine",
			// W intentionally unassigned.
		}),
	}
}

func testRequest() Request {
	return Request{
		Genes:            []common.GeneID{"X", "Y", "Z", "W", "N"},
		Clusters:         []common.ClusterID{"c1", "c2", "c3"},
		ConditionA:       "stimulated",
		ConditionB:       "control",
		Thresholds:       differential.DefaultThresholds(),
		Pseudocount:      1,
		MinCellsPerGroup: 2,
		Test:             differential.TestRankSum,
		Concurrency:      2,
	}
}

func newTestService() *Service {
	return NewService(logging.NewNopLogger(), nil)
}

func TestRun_EndToEnd(t *testing.T) {
	result, err := newTestService().Run(context.Background(), testInputs(t), testRequest())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NoError(t, result.RunID.Validate())

	// Survivors: X and Y, ordered by score descending.
	require.Len(t, result.Rows, 2)

	x := result.Rows[0]
	assert.Equal(t, common.GeneID("X"), x.Gene)
	assert.Equal(t, common.CategoryLabel("cytokine"), x.Category)
	assert.Equal(t, 1.0, x.ConcentrationScore)
	assert.Equal(t, common.ClusterID("c1"), x.Cluster)
	assert.InDelta(t, math.Log2(11.0/1.5), x.Log2FoldChange, 1e-12)
	assert.Equal(t, 1.0, x.PctExpressing)

	y := result.Rows[1]
	assert.Equal(t, common.GeneID("Y"), y.Gene)
	assert.InDelta(t, 1.0/3.0, y.ConcentrationScore, 1e-12)
	// Y's fold change ties across all three clusters; selection resolves to
	// the lexicographically smallest cluster.
	assert.Equal(t, common.ClusterID("c1"), y.Cluster)
	assert.InDelta(t, math.Log2(6.0/2.0), y.Log2FoldChange, 1e-12)
}

func TestRun_ExclusionAccounting(t *testing.T) {
	result, err := newTestService().Run(context.Background(), testInputs(t), testRequest())
	require.NoError(t, err)

	assert.Equal(t, []common.GeneID{"Z"}, result.Exclusions.UndefinedScore)
	assert.Equal(t, []common.GeneID{"N", "Z"}, result.Exclusions.NoInductionEvidence)
	assert.Equal(t, []common.GeneID{"W"}, result.Exclusions.MissingCategory)
	assert.Empty(t, result.Exclusions.SkippedClusters)
}

func TestRun_FilterCorrectness(t *testing.T) {
	req := testRequest()
	result, err := newTestService().Run(context.Background(), testInputs(t), req)
	require.NoError(t, err)

	for _, row := range result.Rows {
		assert.Greater(t, row.Log2FoldChange, req.Thresholds.FoldChange)
		assert.Greater(t, row.PctExpressing, req.Thresholds.Prevalence)
	}
}

func TestRun_DerivesClustersFromAnnotations(t *testing.T) {
	req := testRequest()
	req.Clusters = nil

	result, err := newTestService().Run(context.Background(), testInputs(t), req)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
}

func TestRun_UnknownGeneIsFatal(t *testing.T) {
	req := testRequest()
	req.Genes = append(req.Genes, "GZMB")

	_, err := newTestService().Run(context.Background(), testInputs(t), req)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRun_RequestValidation(t *testing.T) {
	req := testRequest()
	req.ConditionB = req.ConditionA
	_, err := newTestService().Run(context.Background(), testInputs(t), req)
	assert.Error(t, err)

	req = testRequest()
	req.Genes = nil
	_, err = newTestService().Run(context.Background(), testInputs(t), req)
	assert.Error(t, err)
}

func TestRun_AdjustPValuesStillSelects(t *testing.T) {
	req := testRequest()
	req.AdjustPValues = true

	result, err := newTestService().Run(context.Background(), testInputs(t), req)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2, "p-value adjustment is informational and must not change selection")
}

func TestJoin_IntersectionSemantics(t *testing.T) {
	scores := map[common.GeneID]float64{"A": 0.9, "B": 0.5}
	selected := map[common.GeneID]differential.Record{
		"A": {Gene: "A", Cluster: "c1", Log2FoldChange: 1, PctA: 0.5},
		"B": {Gene: "B", Cluster: "c2", Log2FoldChange: 2, PctA: 0.5},
	}
	categories := category.NewMapLookup(map[common.GeneID]common.CategoryLabel{
		"A": "cytokine",
		"B": "effector",
	})

	base, _ := join(scores, selected, categories)
	require.Len(t, base, 2)

	// Adding an unrelated gene to any single input must not change the
	// output.
	scores2 := map[common.GeneID]float64{"A": 0.9, "B": 0.5, "Q": 1.0}
	withExtraScore, _ := join(scores2, selected, categories)
	assert.Equal(t, base, withExtraScore)

	selected2 := map[common.GeneID]differential.Record{
		"A": selected["A"], "B": selected["B"],
		"Q": {Gene: "Q", Cluster: "c1", Log2FoldChange: 9, PctA: 0.9},
	}
	withExtraSelection, _ := join(scores, selected2, categories)
	assert.Equal(t, base, withExtraSelection)

	categories2 := category.NewMapLookup(map[common.GeneID]common.CategoryLabel{
		"A": "cytokine", "B": "effector", "Q": "other",
	})
	withExtraCategory, _ := join(scores, selected, categories2)
	assert.Equal(t, base, withExtraCategory)
}

func TestJoin_MissingCategoryAccounted(t *testing.T) {
	scores := map[common.GeneID]float64{"A": 0.9}
	selected := map[common.GeneID]differential.Record{
		"A": {Gene: "A", Cluster: "c1", Log2FoldChange: 1, PctA: 0.5},
	}
	rows, missing := join(scores, selected, category.NewMapLookup(nil))

	assert.Empty(t, rows)
	assert.Equal(t, []common.GeneID{"A"}, missing)
}
