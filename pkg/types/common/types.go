// Package common defines the shared scalar types used across all Concentra
// layers.  These are deliberately thin string aliases: gene and cluster
// identifiers are opaque keys supplied by the upstream expression store, and
// Concentra never parses or interprets them.
package common

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// GeneID identifies a gene.  Opaque; unique within an analysis run.
type GeneID string

// ClusterID identifies a biological subpopulation (cluster) of cells.
// The set of clusters is finite and fixed for the duration of a run.
type ClusterID string

// Condition labels an experimental treatment group partitioning the cells,
// e.g. "stimulated" vs "control".
type Condition string

// CategoryLabel is an externally supplied functional-group label for a gene.
type CategoryLabel string

// RunID uniquely identifies one analysis run.  It is carried through logs,
// metrics, persistence, and export metadata so that downstream consumers can
// trace a summary table back to its originating run.
type RunID string

// NewRunID returns a fresh UUID-backed RunID.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// Validate reports whether the RunID is a well-formed UUID.
func (id RunID) Validate() error {
	if id == "" {
		return fmt.Errorf("run ID cannot be empty")
	}
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid run ID format: %w", err)
	}
	return nil
}

// SortGenes returns a lexicographically sorted copy of genes.  Used wherever
// deterministic per-gene iteration order is required.
func SortGenes(genes []GeneID) []GeneID {
	out := make([]GeneID, len(genes))
	copy(out, genes)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortClusters returns a lexicographically sorted copy of clusters.
func SortClusters(clusters []ClusterID) []ClusterID {
	out := make([]ClusterID, len(clusters))
	copy(out, clusters)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GeneSet is an order-preserving, duplicate-free collection of gene IDs.
// The zero value is ready to use.
type GeneSet struct {
	order []GeneID
	seen  map[GeneID]struct{}
}

// NewGeneSet builds a GeneSet from genes, dropping duplicates while keeping
// first-occurrence order.
func NewGeneSet(genes ...GeneID) *GeneSet {
	s := &GeneSet{seen: make(map[GeneID]struct{}, len(genes))}
	for _, g := range genes {
		s.Add(g)
	}
	return s
}

// Add inserts g if not already present.
func (s *GeneSet) Add(g GeneID) {
	if s.seen == nil {
		s.seen = make(map[GeneID]struct{})
	}
	if _, ok := s.seen[g]; ok {
		return
	}
	s.seen[g] = struct{}{}
	s.order = append(s.order, g)
}

// Contains reports membership.
func (s *GeneSet) Contains(g GeneID) bool {
	_, ok := s.seen[g]
	return ok
}

// Len returns the number of distinct genes.
func (s *GeneSet) Len() int { return len(s.order) }

// Slice returns the genes in insertion order.  The returned slice is a copy.
func (s *GeneSet) Slice() []GeneID {
	out := make([]GeneID, len(s.order))
	copy(out, s.order)
	return out
}
