// Package differential compares two condition-labeled cell populations per
// cluster and selects each gene's cluster of maximal induction.
package differential

import (
	"math"
	"sort"

	"github.com/tessellabio/concentra/pkg/errors"
)

// TestRankSum is the only shipped test family: a two-sided Wilcoxon rank-sum
// (Mann-Whitney U) test under the normal approximation, with average ranks
// and a variance tie correction.  Rank-based testing suits sparse,
// non-normal expression data where most values are zero.
const TestRankSum = "ranksum"

// RankSumP returns the two-sided p-value for the hypothesis that samples a
// and b are drawn from the same distribution.  Both samples must be
// non-empty.  When every value in the pooled sample is identical the test
// has no discriminating power and p is 1.
func RankSumP(a, b []float64) (float64, error) {
	nA, nB := len(a), len(b)
	if nA == 0 || nB == 0 {
		return 0, errors.New(errors.CodeMissingDifferentialData,
			"rank-sum test requires cells in both conditions")
	}

	type obs struct {
		value float64
		inA   bool
	}
	pooled := make([]obs, 0, nA+nB)
	for _, v := range a {
		pooled = append(pooled, obs{value: v, inA: true})
	}
	for _, v := range b {
		pooled = append(pooled, obs{value: v})
	}
	sort.Slice(pooled, func(i, j int) bool { return pooled[i].value < pooled[j].value })

	// Assign average ranks to ties, accumulating the tie correction term
	// Σ(t³ - t) as each tie group closes.
	n := float64(nA + nB)
	var rankSumA, tieTerm float64
	for i := 0; i < len(pooled); {
		j := i
		for j < len(pooled) && pooled[j].value == pooled[i].value {
			j++
		}
		// Ranks are 1-based: the group spans ranks i+1..j.
		avgRank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if pooled[k].inA {
				rankSumA += avgRank
			}
		}
		t := float64(j - i)
		tieTerm += t*t*t - t
		i = j
	}

	u := rankSumA - float64(nA)*float64(nA+1)/2
	mean := float64(nA) * float64(nB) / 2
	variance := float64(nA) * float64(nB) / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	if variance <= 0 {
		return 1, nil
	}

	// Continuity correction toward the mean.
	diff := u - mean
	switch {
	case diff > 0.5:
		diff -= 0.5
	case diff < -0.5:
		diff += 0.5
	default:
		diff = 0
	}
	z := diff / math.Sqrt(variance)
	p := math.Erfc(math.Abs(z) / math.Sqrt2)
	if p > 1 {
		p = 1
	}
	return p, nil
}

// AdjustPValues applies the Benjamini-Hochberg step-up procedure in place,
// replacing each record's PValue with its adjusted value.  Adjusted p-values
// are informational only; no filter in this pipeline consumes them.
func AdjustPValues(records []Record) {
	m := len(records)
	if m == 0 {
		return
	}
	idx := make([]int, m)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return records[idx[i]].PValue < records[idx[j]].PValue
	})

	adjusted := make([]float64, m)
	minSoFar := 1.0
	for rank := m - 1; rank >= 0; rank-- {
		p := records[idx[rank]].PValue * float64(m) / float64(rank+1)
		if p < minSoFar {
			minSoFar = p
		}
		adjusted[idx[rank]] = minSoFar
	}
	for i := range records {
		records[i].PValue = adjusted[i]
	}
}
