package analysis

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/tessellabio/concentra/pkg/errors"
	"github.com/tessellabio/concentra/pkg/types/common"
)

// Columns is the canonical column order of the exported table.
var Columns = []string{
	"gene",
	"category",
	"concentration_score",
	"log2_fold_change",
	"cluster_of_max_induction",
	"pct_expressing",
}

// Exporter writes a completed result to w.  Row order is preserved as
// produced by the Service, so exports are deterministic.
type Exporter interface {
	Export(w io.Writer, result *Result) error
	Format() string
}

// delimitedExporter writes the table with a configurable field delimiter.
// It backs both the TSV and CSV exporters.
type delimitedExporter struct {
	comma     rune
	format    string
	precision int
}

// NewTSVExporter returns the canonical tab-separated exporter.  precision
// controls the number of significant digits of float columns.
func NewTSVExporter(precision int) Exporter {
	return &delimitedExporter{comma: '\t', format: "tsv", precision: precision}
}

// NewCSVExporter returns a comma-separated exporter.
func NewCSVExporter(precision int) Exporter {
	return &delimitedExporter{comma: ',', format: "csv", precision: precision}
}

func (e *delimitedExporter) Format() string { return e.format }

func (e *delimitedExporter) Export(w io.Writer, result *Result) error {
	if result == nil {
		return errors.InvalidParam("result is required")
	}
	cw := csv.NewWriter(w)
	cw.Comma = e.comma

	if err := cw.Write(Columns); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "writing header")
	}
	for _, row := range result.Rows {
		record := []string{
			string(row.Gene),
			string(row.Category),
			e.formatFloat(row.ConcentrationScore),
			e.formatFloat(row.Log2FoldChange),
			string(row.Cluster),
			e.formatFloat(row.PctExpressing),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, errors.CodeExportFailed, "writing row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "flushing table")
	}
	return nil
}

func (e *delimitedExporter) formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', e.precision, 64)
}

// jsonExporter writes the result as a single JSON document including the
// run ID and per-row p-values, which the delimited formats omit.
type jsonExporter struct{}

// NewJSONExporter returns the JSON exporter.
func NewJSONExporter() Exporter { return jsonExporter{} }

func (jsonExporter) Format() string { return "json" }

func (jsonExporter) Export(w io.Writer, result *Result) error {
	if result == nil {
		return errors.InvalidParam("result is required")
	}
	doc := struct {
		RunID common.RunID `json:"run_id"`
		Rows  []SummaryRow `json:"rows"`
	}{RunID: result.RunID, Rows: result.Rows}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "encoding JSON")
	}
	return nil
}

// NewExporter returns the exporter for format, one of "tsv", "csv", "json".
func NewExporter(format string, precision int) (Exporter, error) {
	switch format {
	case "tsv":
		return NewTSVExporter(precision), nil
	case "csv":
		return NewCSVExporter(precision), nil
	case "json":
		return NewJSONExporter(), nil
	default:
		return nil, errors.InvalidParam("unknown export format " + strconv.Quote(format))
	}
}
