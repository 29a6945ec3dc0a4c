// Package export writes accessibility results and weight matrices as
// delimited text, XLSX workbooks or aligned console tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/access-cli/internal/category"
	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/weights"
)

// Format is an output format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatXLSX  Format = "xlsx"
	FormatTable Format = "table"
)

// IDColumn heads the identifier column of every export.
const IDColumn = "id"

// Infinity is how degenerate +Inf cells are written.
const Infinity = "inf"

// FormatFor returns the format implied by an output path. Unknown
// extensions write CSV.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatTSV, FormatXLSX, FormatTable:
		return f, nil
	default:
		return "", model.NewConfigurationError("format", "unknown output format %q", s)
	}
}

// FormatValue renders a cell: shortest round-trip decimal, "inf" for +Inf
// sentinels and empty for NaN.
func FormatValue(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return Infinity
	case math.IsInf(v, -1):
		return "-" + Infinity
	case math.IsNaN(v):
		return ""
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

func tableRows(tbl *frame.Table) [][]string {
	cols := tbl.Columns()
	rows := make([][]string, 0, tbl.Len()+1)
	rows = append(rows, append([]string{IDColumn}, cols...))
	for i := range tbl.Len() {
		row := make([]string, 0, len(cols)+1)
		row = append(row, tbl.Key(i))
		for _, c := range cols {
			row = append(row, FormatValue(tbl.At(i, c)))
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes tbl as delimited text: an id column then one column per
// table column.
func WriteCSV(w io.Writer, tbl *frame.Table, delim rune) error {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = delim
	}
	for _, row := range tableRows(tbl) {
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush CSV")
}

// WriteTable writes tbl as aligned columns for a terminal.
func WriteTable(w io.Writer, tbl *frame.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	cols := tbl.Columns()
	if _, err := fmt.Fprintln(tw, strings.Join(append([]string{IDColumn}, cols...), "\t")+"\t"); err != nil {
		return eris.Wrap(err, "export: write table header")
	}
	for i := range tbl.Len() {
		cells := []string{tbl.Key(i)}
		for _, c := range cols {
			v := tbl.At(i, c)
			if math.IsInf(v, 0) || math.IsNaN(v) {
				cells = append(cells, FormatValue(v))
				continue
			}
			cells = append(cells, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if _, err := fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t"); err != nil {
			return eris.Wrap(err, "export: write table row")
		}
	}
	return eris.Wrap(tw.Flush(), "export: flush table")
}

// WriteXLSX saves tbl as a single-sheet workbook. Numbers are written as
// numeric cells; sentinels as text.
func WriteXLSX(path string, tbl *frame.Table, sheetName string) error {
	if sheetName == "" {
		sheetName = tbl.Name()
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	cols := tbl.Columns()
	header := sheet.AddRow()
	header.AddCell().SetString(IDColumn)
	for _, c := range cols {
		header.AddCell().SetString(c)
	}
	for i := range tbl.Len() {
		row := sheet.AddRow()
		row.AddCell().SetString(tbl.Key(i))
		for _, c := range cols {
			v := tbl.At(i, c)
			if math.IsInf(v, 0) || math.IsNaN(v) {
				row.AddCell().SetString(FormatValue(v))
				continue
			}
			row.AddCell().SetFloat(v)
		}
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// WriteFile writes tbl to path in the format its extension implies.
func WriteFile(path string, tbl *frame.Table) error {
	format := FormatFor(path)
	if format == FormatXLSX {
		return WriteXLSX(path, tbl, "")
	}
	f, err := os.Create(path) //nolint:gosec // caller-chosen output path
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(f, tbl, format); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// Write writes tbl to w in a stream format (csv, tsv or table).
func Write(w io.Writer, tbl *frame.Table, format Format) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, tbl, ',')
	case FormatTSV:
		return WriteCSV(w, tbl, '\t')
	case FormatTable:
		return WriteTable(w, tbl)
	default:
		return model.NewConfigurationError("format", "%s cannot be written to a stream", format)
	}
}

// WriteMatrixCSV writes m with an id header followed by the unit ids, one
// row per unit, the layout dataset.LoadMatrix reads.
func WriteMatrixCSV(w io.Writer, m *weights.Matrix, delim rune) error {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = delim
	}
	keys := m.Keys()
	if err := cw.Write(append([]string{IDColumn}, keys...)); err != nil {
		return eris.Wrap(err, "export: write matrix header")
	}
	row := make([]string, len(keys)+1)
	for i, k := range keys {
		row[0] = k
		for j := range keys {
			row[j+1] = FormatValue(m.At(i, j))
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write matrix row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush matrix")
}

// WriteNeighbors writes the catchment of every unit in long form: one
// id,neighbor,weight row per non-zero matrix entry, in matrix order.
func WriteNeighbors(w io.Writer, m *weights.Matrix, delim rune) error {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = delim
	}
	if err := cw.Write([]string{IDColumn, "neighbor", "weight"}); err != nil {
		return eris.Wrap(err, "export: write neighbors header")
	}
	for i := range m.Len() {
		for _, n := range m.Neighbors(i) {
			if err := cw.Write([]string{m.Key(i), n.Key, FormatValue(n.Weight)}); err != nil {
				return eris.Wrap(err, "export: write neighbor row")
			}
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush neighbors")
}

// WriteTagCounts writes a value/count report.
func WriteTagCounts(w io.Writer, counts []category.TagCount, format Format) error {
	if format == FormatTable {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, c := range counts {
			if _, err := fmt.Fprintf(tw, "%s\t%d\n", c.Value, c.Count); err != nil {
				return eris.Wrap(err, "export: write tag counts")
			}
		}
		return eris.Wrap(tw.Flush(), "export: flush tag counts")
	}

	cw := csv.NewWriter(w)
	if format == FormatTSV {
		cw.Comma = '\t'
	}
	if err := cw.Write([]string{"value", "count"}); err != nil {
		return eris.Wrap(err, "export: write tag counts header")
	}
	for _, c := range counts {
		if err := cw.Write([]string{c.Value, strconv.Itoa(c.Count)}); err != nil {
			return eris.Wrap(err, "export: write tag counts")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush tag counts")
}
