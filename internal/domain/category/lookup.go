// Package category supplies the gene to functional-category mapping joined
// into the final table.  The mapping is caller-supplied data, never inline
// membership logic, so category schemes are swappable without code changes.
package category

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Lookup resolves a gene to its category.  A gene without an assignment
// returns ok=false; the join drops such genes silently.
type Lookup interface {
	Category(gene common.GeneID) (common.CategoryLabel, bool)
}

// MapLookup is a Lookup over an in-memory map.
type MapLookup struct {
	assignments map[common.GeneID]common.CategoryLabel
}

// NewMapLookup copies assignments into a MapLookup.
func NewMapLookup(assignments map[common.GeneID]common.CategoryLabel) *MapLookup {
	m := make(map[common.GeneID]common.CategoryLabel, len(assignments))
	for g, c := range assignments {
		m[g] = c
	}
	return &MapLookup{assignments: m}
}

// Category implements Lookup.
func (l *MapLookup) Category(gene common.GeneID) (common.CategoryLabel, bool) {
	c, ok := l.assignments[gene]
	return c, ok
}

// Len returns the number of assigned genes.
func (l *MapLookup) Len() int { return len(l.assignments) }

// LoadTSV reads a two-column gene-to-category table.  Columns are tab
// separated; blank lines and lines starting with '#' are skipped.  A gene
// may appear only once.  Parse failures are fatal: a run configured against
// a category table it cannot read must abort before producing output.
func LoadTSV(path string) (*MapLookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCategoryParseFailed,
			fmt.Sprintf("opening category table %q", path))
	}
	defer f.Close()
	return ParseTSV(f)
}

// ParseTSV parses category assignments from r.  See LoadTSV for the format.
func ParseTSV(r io.Reader) (*MapLookup, error) {
	assignments := make(map[common.GeneID]common.CategoryLabel)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 2 {
			return nil, errors.New(errors.CodeCategoryParseFailed,
				fmt.Sprintf("line %d: expected 2 tab-separated columns, got %d", line, len(fields)))
		}
		gene := common.GeneID(strings.TrimSpace(fields[0]))
		label := common.CategoryLabel(strings.TrimSpace(fields[1]))
		if gene == "" || label == "" {
			return nil, errors.New(errors.CodeCategoryParseFailed,
				fmt.Sprintf("line %d: empty gene or category", line))
		}
		if _, dup := assignments[gene]; dup {
			return nil, errors.New(errors.CodeCategoryParseFailed,
				fmt.Sprintf("line %d: duplicate assignment for gene %q", line, gene))
		}
		assignments[gene] = label
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCategoryParseFailed, "reading category table")
	}
	return &MapLookup{assignments: assignments}, nil
}
