package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunID_Validate_ValidUUID(t *testing.T) {
	id := RunID("550e8400-e29b-41d4-a716-446655440000")
	assert.NoError(t, id.Validate())
}

func TestRunID_Validate_EmptyString(t *testing.T) {
	id := RunID("")
	err := id.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestRunID_Validate_InvalidFormat(t *testing.T) {
	id := RunID("not-a-uuid")
	err := id.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run ID format")
}

func TestNewRunID_GeneratesValidUUID(t *testing.T) {
	id := NewRunID()
	assert.NoError(t, id.Validate())
}

func TestSortGenes_DoesNotMutateInput(t *testing.T) {
	in := []GeneID{"IL6", "CCL2", "TNF"}
	out := SortGenes(in)
	assert.Equal(t, []GeneID{"CCL2", "IL6", "TNF"}, out)
	assert.Equal(t, []GeneID{"IL6", "CCL2", "TNF"}, in)
}

func TestSortClusters(t *testing.T) {
	out := SortClusters([]ClusterID{"9", "10", "2"})
	// Lexicographic, not numeric: "10" sorts before "2".
	assert.Equal(t, []ClusterID{"10", "2", "9"}, out)
}

func TestGeneSet_DropsDuplicatesKeepsOrder(t *testing.T) {
	s := NewGeneSet("TNF", "IL6", "TNF", "CCL2", "IL6")
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []GeneID{"TNF", "IL6", "CCL2"}, s.Slice())
	assert.True(t, s.Contains("IL6"))
	assert.False(t, s.Contains("GAPDH"))
}

func TestGeneSet_ZeroValueUsable(t *testing.T) {
	var s GeneSet
	s.Add("TNF")
	assert.True(t, s.Contains("TNF"))
	assert.Equal(t, 1, s.Len())
}
