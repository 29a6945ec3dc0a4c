package dataset

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/model"
)

// LoadTable reads a unit-keyed numeric table, such as precomputed supply
// counts, from a CSV, TSV or XLSX file. Every column other than idColumn
// must be numeric; empty cells load as NaN.
func (l *Loader) LoadTable(ctx context.Context, location, name, idColumn, sheet string) (*frame.Table, error) {
	if idColumn == "" {
		idColumn = "id"
	}
	path, err := l.local(ctx, location)
	if err != nil {
		return nil, err
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	header, rows, err := readTabular(ctx, path, format, sheet)
	if err != nil {
		return nil, err
	}
	idIdx := columnIndex(header, idColumn)
	if idIdx < 0 {
		return nil, &model.SchemaError{Table: name, Column: idColumn, Reason: "missing column"}
	}
	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = cell(row, idIdx)
	}
	tbl, err := numericTable(name, keys, header, rows, map[int]bool{idIdx: true}, true)
	if err != nil {
		return nil, err
	}
	zap.L().Info("dataset: loaded table",
		zap.String("table", name),
		zap.String("path", path),
		zap.Int("rows", tbl.Len()),
		zap.Strings("columns", tbl.Columns()),
	)
	return tbl, nil
}
