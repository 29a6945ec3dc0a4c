// Package dataset loads the inputs of an analysis run from local files or
// URLs: spatial units with their demographic columns, supply tables, points
// of interest and precomputed weight matrices.
package dataset

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/fetcher"
	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/model"
)

// Format identifies an input file type.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatTSV       Format = "tsv"
	FormatXLSX      Format = "xlsx"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shp"
	FormatZIP       Format = "zip"
	FormatOSM       Format = "osm"
)

// DetectFormat returns the format implied by the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".shp":
		return FormatShapefile, nil
	case ".zip":
		return FormatZIP, nil
	case ".osm", ".xml":
		return FormatOSM, nil
	default:
		return "", model.NewConfigurationError("input", "unsupported file type %q", filepath.Base(path))
	}
}

// Loader reads run inputs. Remote locations are downloaded through the
// fetcher into scratch directories that Close removes.
type Loader struct {
	fetcher fetcher.Fetcher
	tempDir string

	mu      sync.Mutex
	scratch []string
}

// NewLoader creates a Loader. f may be nil when every input is local.
// tempDir is the parent of scratch directories; empty means os.TempDir.
func NewLoader(f fetcher.Fetcher, tempDir string) *Loader {
	return &Loader{fetcher: f, tempDir: tempDir}
}

// Close removes downloaded and extracted files.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, dir := range l.scratch {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = eris.Wrapf(err, "dataset: remove %s", dir)
		}
	}
	l.scratch = nil
	return firstErr
}

func (l *Loader) scratchDir() (string, error) {
	if l.tempDir != "" {
		if err := os.MkdirAll(l.tempDir, 0o755); err != nil {
			return "", eris.Wrap(err, "dataset: create temp dir")
		}
	}
	dir, err := os.MkdirTemp(l.tempDir, "access-")
	if err != nil {
		return "", eris.Wrap(err, "dataset: create scratch dir")
	}
	l.mu.Lock()
	l.scratch = append(l.scratch, dir)
	l.mu.Unlock()
	return dir, nil
}

// local returns a local path for location, downloading it when remote.
func (l *Loader) local(ctx context.Context, location string) (string, error) {
	if location == "" {
		return "", model.NewConfigurationError("input", "empty input location")
	}
	if !fetcher.IsRemote(location) {
		return location, nil
	}
	if l.fetcher == nil {
		return "", eris.Errorf("dataset: no fetcher configured for %s", location)
	}
	dir, err := l.scratchDir()
	if err != nil {
		return "", err
	}
	path, err := fetcher.Resolve(ctx, l.fetcher, location, dir)
	if err != nil {
		return "", eris.Wrapf(err, "dataset: fetch %s", location)
	}
	zap.L().Info("dataset: downloaded input", zap.String("url", location), zap.String("path", path))
	return path, nil
}

// readTabular reads a CSV, TSV or XLSX file into a header and string rows.
func readTabular(ctx context.Context, path string, format Format, sheet string) ([]string, [][]string, error) {
	var header []string
	var rows [][]string
	switch format {
	case FormatCSV, FormatTSV:
		f, err := os.Open(path) //nolint:gosec // user-supplied input path
		if err != nil {
			return nil, nil, eris.Wrapf(err, "dataset: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		header, rows, err = fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{
			Delimiter: fetcher.DelimiterFor(path),
			TrimSpace: true,
		})
		if err != nil {
			return nil, nil, eris.Wrapf(err, "dataset: read %s", path)
		}
	case FormatXLSX:
		var err error
		header, rows, err = fetcher.ReadXLSXTable(path, fetcher.XLSXOptions{SheetName: sheet})
		if err != nil {
			return nil, nil, eris.Wrapf(err, "dataset: read %s", path)
		}
	default:
		return nil, nil, model.NewConfigurationError("input", "%s is not a tabular file", filepath.Base(path))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return header, rows, nil
}

// columnIndex finds a header column by case-insensitive name, or -1.
func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseNumber parses a numeric cell. Empty cells are NaN so that a missing
// value surfaces as a schema error where the column is consumed.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// numericTable builds a table from the columns of rows not listed in skip.
// In strict mode a non-numeric cell is a SchemaError. Otherwise a column
// whose first non-empty cell is not a number is treated as text and dropped
// quietly, while a numeric column broken by a later bad cell is dropped with
// a warning naming the unit and the cell.
func numericTable(name string, keys []string, header []string, rows [][]string, skip map[int]bool, strict bool) (*frame.Table, error) {
	tbl, err := frame.New(name, keys)
	if err != nil {
		return nil, err
	}
	for c, col := range header {
		if skip[c] {
			continue
		}
		if col == "" {
			if strict {
				return nil, model.NewSchemaError(name, "column %d has no name", c+1)
			}
			continue
		}
		values := make([]float64, len(rows))
		ok, numeric := true, false
		for r, row := range rows {
			raw := cell(row, c)
			v, parsed := parseNumber(raw)
			if !parsed {
				if strict {
					return nil, &model.SchemaError{Table: name, Column: col, Unit: keys[r], Reason: "value is not a number"}
				}
				if numeric {
					zap.L().Warn("dataset: dropping numeric column with a non-numeric cell",
						zap.String("table", name),
						zap.String("column", col),
						zap.String("unit", keys[r]),
						zap.String("value", raw),
					)
				} else {
					zap.L().Debug("dataset: skipping non-numeric column", zap.String("table", name), zap.String("column", col))
				}
				ok = false
				break
			}
			if raw != "" {
				numeric = true
			}
			values[r] = v
		}
		if !ok {
			continue
		}
		if err := tbl.AddColumn(col, values); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
