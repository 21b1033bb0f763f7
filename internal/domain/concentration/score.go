// Package concentration converts per-cluster mean expression into a
// normalized share vector and reduces it to a Herfindahl-Hirschman style
// concentration score: the sum of squared expression shares.  A score of 1
// means all expression sits in one cluster; 1/k means a perfectly uniform
// spread over k clusters.
package concentration

import (
	"fmt"

	"github.com/tessellabio/concentra/internal/domain/expression"
	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Shares normalizes one gene's per-cluster means into expression shares in
// cluster order.  When total expression is zero the score is undefined and
// an SCORE_001 error is returned; callers exclude the gene rather than emit
// NaN.
func Shares(row map[common.ClusterID]float64, clusters []common.ClusterID) ([]float64, error) {
	if len(clusters) == 0 {
		return nil, errors.InvalidParam("cluster set is empty")
	}
	var total float64
	for _, cl := range clusters {
		v := row[cl]
		if v < 0 {
			return nil, errors.InvalidParam(fmt.Sprintf("cluster %q has negative mean expression %g", cl, v))
		}
		total += v
	}
	if total == 0 {
		return nil, errors.New(errors.CodeUndefinedScore, "total expression across clusters is zero")
	}
	shares := make([]float64, len(clusters))
	for i, cl := range clusters {
		shares[i] = row[cl] / total
	}
	return shares, nil
}

// Score reduces a share vector to the sum of squared shares.
func Score(shares []float64) float64 {
	var score float64
	for _, s := range shares {
		score += s * s
	}
	return score
}

// ScoreGene computes the concentration score for one gene's profile row.
func ScoreGene(row map[common.ClusterID]float64, clusters []common.ClusterID) (float64, error) {
	shares, err := Shares(row, clusters)
	if err != nil {
		return 0, err
	}
	return Score(shares), nil
}

// ScoreAll scores every gene in profile.  Genes whose total expression is
// zero are returned separately in deterministic (sorted) order; any other
// error aborts.
func ScoreAll(profile expression.Profile, clusters []common.ClusterID) (map[common.GeneID]float64, []common.GeneID, error) {
	scores := make(map[common.GeneID]float64, len(profile))
	var undefined []common.GeneID
	for gene, row := range profile {
		score, err := ScoreGene(row, clusters)
		if err != nil {
			if errors.IsCode(err, errors.CodeUndefinedScore) {
				undefined = append(undefined, gene)
				continue
			}
			return nil, nil, errors.Wrap(err, errors.GetCode(err),
				fmt.Sprintf("scoring gene %q", gene))
		}
		scores[gene] = score
	}
	return scores, common.SortGenes(undefined), nil
}
