package dataset

import (
	"context"

	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/weights"
)

// LoadMatrix reads a weight matrix from a CSV or TSV file whose header is an
// id label followed by the unit ids, with one row per unit. Rows may appear
// in any order; the header fixes the matrix order.
func (l *Loader) LoadMatrix(ctx context.Context, location string) (*weights.Matrix, error) {
	path, err := l.local(ctx, location)
	if err != nil {
		return nil, err
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format != FormatCSV && format != FormatTSV && format != FormatXLSX {
		return nil, model.NewConfigurationError("weights", "weight matrices are read from CSV, TSV or XLSX, got %s", format)
	}
	header, rows, err := readTabular(ctx, path, format, "")
	if err != nil {
		return nil, err
	}
	if len(header) < 2 {
		return nil, model.NewSchemaError("weights", "header has no unit columns")
	}
	keys := header[1:]

	byKey := make(map[string][]float64, len(rows))
	for _, row := range rows {
		id := cell(row, 0)
		if _, dup := byKey[id]; dup {
			return nil, &model.SchemaError{Table: "weights", Unit: id, Reason: "duplicate row"}
		}
		values := make([]float64, len(keys))
		for j, col := range keys {
			v, ok := parseNumber(cell(row, j+1))
			if !ok {
				return nil, &model.SchemaError{Table: "weights", Column: col, Unit: id, Reason: "value is not a number"}
			}
			values[j] = v
		}
		byKey[id] = values
	}

	values := make([][]float64, len(keys))
	for i, k := range keys {
		row, ok := byKey[k]
		if !ok {
			return nil, &model.SchemaError{Table: "weights", Unit: k, Reason: "no row for unit"}
		}
		values[i] = row
	}
	if len(byKey) != len(keys) {
		return nil, model.NewSchemaError("weights", "matrix has %d rows for %d units", len(byKey), len(keys))
	}
	return weights.NewMatrix(keys, values)
}
