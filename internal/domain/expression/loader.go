package expression

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// LoadMatrixTSV reads a dense expression matrix.  The first non-comment line
// is a header of tab-separated gene identifiers; every following line is one
// cell with one linear-scale value per gene.  Parse failures are fatal.
func LoadMatrixTSV(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeMalformedInput, "opening expression matrix %q", path)
	}
	defer f.Close()
	return ParseMatrixTSV(f)
}

// ParseMatrixTSV parses a matrix from r.  See LoadMatrixTSV for the format.
func ParseMatrixTSV(r io.Reader) (*Matrix, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var genes []common.GeneID
	var rows [][]float64
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if genes == nil {
			genes = make([]common.GeneID, len(fields))
			for i, f := range fields {
				genes[i] = common.GeneID(strings.TrimSpace(f))
			}
			continue
		}
		if len(fields) != len(genes) {
			return nil, errors.Newf(errors.CodeMalformedMatrix,
				"line %d: expected %d values, got %d", line, len(genes), len(fields))
		}
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, errors.Newf(errors.CodeMalformedMatrix,
					"line %d: column %d is not numeric: %q", line, i+1, f)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeMalformedInput, "reading expression matrix")
	}
	if genes == nil {
		return nil, errors.MalformedInput("expression matrix has no header line")
	}
	return NewMatrix(genes, rows)
}

// LoadAnnotationsTSV reads per-cell labels.  Each non-comment line is
// `cell<TAB>cluster<TAB>condition`; a header line whose first column is
// literally "cell" is skipped.  Line order must match matrix row order, so
// the cell identifier itself is carried for error messages only.
func LoadAnnotationsTSV(path string) (*Annotations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeMalformedInput, "opening annotations %q", path)
	}
	defer f.Close()
	return ParseAnnotationsTSV(f)
}

// ParseAnnotationsTSV parses annotations from r.  See LoadAnnotationsTSV for
// the format.
func ParseAnnotationsTSV(r io.Reader) (*Annotations, error) {
	scanner := bufio.NewScanner(r)
	var cells []CellAnnotation
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 3 {
			return nil, errors.Newf(errors.CodeMalformedInput,
				"line %d: expected 3 tab-separated columns (cell, cluster, condition), got %d", line, len(fields))
		}
		if len(cells) == 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "cell") {
			continue
		}
		cells = append(cells, CellAnnotation{
			Cluster:   common.ClusterID(strings.TrimSpace(fields[1])),
			Condition: common.Condition(strings.TrimSpace(fields[2])),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeMalformedInput, "reading annotations")
	}
	if len(cells) == 0 {
		return nil, errors.MalformedInput("annotation table has no data lines")
	}
	return NewAnnotations(cells)
}
