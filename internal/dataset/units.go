package dataset

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/fetcher"
	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/geo"
	"github.com/sells-group/access-cli/internal/model"
)

// UnitsTable names the demographic table returned by LoadUnits.
const UnitsTable = "units"

// UnitOptions names the columns unit files are read from.
type UnitOptions struct {
	IDColumn       string `yaml:"id_column" mapstructure:"id_column"`
	LonColumn      string `yaml:"lon_column" mapstructure:"lon_column"`
	LatColumn      string `yaml:"lat_column" mapstructure:"lat_column"`
	GeometryColumn string `yaml:"geometry_column" mapstructure:"geometry_column"` // WKT
	Sheet          string `yaml:"sheet" mapstructure:"sheet"`
}

// DefaultUnitOptions returns the conventional column names.
func DefaultUnitOptions() UnitOptions {
	return UnitOptions{
		IDColumn:       "id",
		LonColumn:      "lon",
		LatColumn:      "lat",
		GeometryColumn: "geometry",
	}
}

func (o UnitOptions) withDefaults() UnitOptions {
	d := DefaultUnitOptions()
	if o.IDColumn == "" {
		o.IDColumn = d.IDColumn
	}
	if o.LonColumn == "" {
		o.LonColumn = d.LonColumn
	}
	if o.LatColumn == "" {
		o.LatColumn = d.LatColumn
	}
	if o.GeometryColumn == "" {
		o.GeometryColumn = d.GeometryColumn
	}
	return o
}

// rawUnits is the common shape every unit source is decoded into before the
// demographic columns are parsed.
type rawUnits struct {
	ids    []string
	geoms  []orb.Geometry
	header []string
	rows   [][]string
	skip   map[int]bool
}

// LoadUnits reads spatial units and their numeric attribute columns. The
// returned table is keyed by unit ID in file order. Non-numeric attribute
// columns, such as names, are ignored.
func (l *Loader) LoadUnits(ctx context.Context, location string, opts UnitOptions) ([]model.SpatialUnit, *frame.Table, error) {
	opts = opts.withDefaults()
	path, err := l.local(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	var raw *rawUnits
	switch format {
	case FormatCSV, FormatTSV, FormatXLSX:
		raw, err = tabularUnits(ctx, path, format, opts)
	case FormatGeoJSON:
		raw, err = geojsonUnits(path, opts)
	case FormatShapefile:
		raw, err = shapefileUnits(path, opts)
	case FormatZIP:
		var dir string
		if dir, err = l.scratchDir(); err != nil {
			return nil, nil, err
		}
		var shpPath string
		if shpPath, err = fetcher.ExtractZIPByExt(path, ".shp", dir); err != nil {
			return nil, nil, eris.Wrapf(err, "dataset: extract %s", path)
		}
		raw, err = shapefileUnits(shpPath, opts)
	default:
		return nil, nil, model.NewConfigurationError("units", "cannot read units from %s files", format)
	}
	if err != nil {
		return nil, nil, err
	}

	units := make([]model.SpatialUnit, len(raw.ids))
	for i, id := range raw.ids {
		g := raw.geoms[i]
		c := geo.Centroid(g)
		if !geo.ValidPoint(c) {
			return nil, nil, &model.SchemaError{Table: UnitsTable, Unit: id, Reason: "unit has no usable geometry"}
		}
		units[i] = model.SpatialUnit{ID: id, Geometry: g, Centroid: c}
	}
	tbl, err := numericTable(UnitsTable, raw.ids, raw.header, raw.rows, raw.skip, false)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("dataset: loaded units",
		zap.String("path", path),
		zap.Int("units", len(units)),
		zap.Strings("columns", tbl.Columns()),
	)
	return units, tbl, nil
}

func tabularUnits(ctx context.Context, path string, format Format, opts UnitOptions) (*rawUnits, error) {
	header, rows, err := readTabular(ctx, path, format, opts.Sheet)
	if err != nil {
		return nil, err
	}
	idIdx := columnIndex(header, opts.IDColumn)
	if idIdx < 0 {
		return nil, &model.SchemaError{Table: UnitsTable, Column: opts.IDColumn, Reason: "missing column"}
	}
	geomIdx := columnIndex(header, opts.GeometryColumn)
	lonIdx := columnIndex(header, opts.LonColumn)
	latIdx := columnIndex(header, opts.LatColumn)
	if geomIdx < 0 && (lonIdx < 0 || latIdx < 0) {
		return nil, model.NewSchemaError(UnitsTable, "need a %q column or %q and %q columns",
			opts.GeometryColumn, opts.LonColumn, opts.LatColumn)
	}

	raw := &rawUnits{
		ids:    make([]string, len(rows)),
		geoms:  make([]orb.Geometry, len(rows)),
		header: header,
		rows:   rows,
		skip:   map[int]bool{idIdx: true, geomIdx: true, lonIdx: true, latIdx: true},
	}
	for i, row := range rows {
		id := cell(row, idIdx)
		raw.ids[i] = id
		if geomIdx >= 0 && cell(row, geomIdx) != "" {
			g, err := wkt.Unmarshal(cell(row, geomIdx))
			if err != nil {
				return nil, &model.SchemaError{Table: UnitsTable, Column: opts.GeometryColumn, Unit: id, Reason: "invalid WKT: " + err.Error()}
			}
			raw.geoms[i] = g
			continue
		}
		p, err := parsePoint(row, lonIdx, latIdx)
		if err != nil {
			return nil, &model.SchemaError{Table: UnitsTable, Unit: id, Reason: err.Error()}
		}
		raw.geoms[i] = p
	}
	return raw, nil
}

func parsePoint(row []string, lonIdx, latIdx int) (orb.Point, error) {
	if lonIdx < 0 || latIdx < 0 {
		return orb.Point{}, eris.New("no geometry and no coordinate columns")
	}
	lon, err := strconv.ParseFloat(cell(row, lonIdx), 64)
	if err != nil {
		return orb.Point{}, eris.Errorf("invalid longitude %q", cell(row, lonIdx))
	}
	lat, err := strconv.ParseFloat(cell(row, latIdx), 64)
	if err != nil {
		return orb.Point{}, eris.Errorf("invalid latitude %q", cell(row, latIdx))
	}
	return orb.Point{lon, lat}, nil
}

func readFeatures(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied input path
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: decode geojson %s", path)
	}
	return fc, nil
}

// featureID returns the idColumn property, else the feature id, else "".
func featureID(f *geojson.Feature, idColumn string) string {
	if v, ok := f.Properties[idColumn]; ok && v != nil {
		return propertyString(v)
	}
	if f.ID != nil {
		return propertyString(f.ID)
	}
	return ""
}

func propertyString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// geojsonUnits flattens feature properties into string rows so that they go
// through the same numeric parsing as tabular files.
func geojsonUnits(path string, opts UnitOptions) (*rawUnits, error) {
	fc, err := readFeatures(path)
	if err != nil {
		return nil, err
	}

	names := map[string]struct{}{}
	for _, f := range fc.Features {
		for k := range f.Properties {
			if k != opts.IDColumn {
				names[k] = struct{}{}
			}
		}
	}
	header := make([]string, 0, len(names))
	for k := range names {
		header = append(header, k)
	}
	sort.Strings(header)

	raw := &rawUnits{
		ids:    make([]string, len(fc.Features)),
		geoms:  make([]orb.Geometry, len(fc.Features)),
		header: header,
		rows:   make([][]string, len(fc.Features)),
	}
	for i, f := range fc.Features {
		raw.ids[i] = featureID(f, opts.IDColumn)
		raw.geoms[i] = f.Geometry
		row := make([]string, len(header))
		for c, k := range header {
			row[c] = propertyString(f.Properties[k])
		}
		raw.rows[i] = row
	}
	return raw, nil
}

func shapefileUnits(path string, opts UnitOptions) (*rawUnits, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = trimField(f.String())
	}
	idIdx := columnIndex(header, opts.IDColumn)
	if idIdx < 0 {
		return nil, &model.SchemaError{Table: UnitsTable, Column: opts.IDColumn, Reason: "missing shapefile field"}
	}

	raw := &rawUnits{header: header, skip: map[int]bool{idIdx: true}}
	for reader.Next() {
		_, shape := reader.Shape()
		row := make([]string, len(fields))
		for i := range fields {
			row[i] = trimField(reader.Attribute(i))
		}
		raw.ids = append(raw.ids, row[idIdx])
		raw.geoms = append(raw.geoms, geo.FromShape(shape))
		raw.rows = append(raw.rows, row)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "dataset: read shapefile %s", path)
	}
	return raw, nil
}

func trimField(s string) string {
	return strings.Trim(s, "\x00 ")
}
