package dataset

import (
	"context"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmxml"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/geo"
	"github.com/sells-group/access-cli/internal/model"
)

// POIOptions names the columns POI tables are read from. Every other column
// of a tabular file is a tag.
type POIOptions struct {
	IDColumn  string `yaml:"id_column" mapstructure:"id_column"`
	LonColumn string `yaml:"lon_column" mapstructure:"lon_column"`
	LatColumn string `yaml:"lat_column" mapstructure:"lat_column"`
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
}

func (o POIOptions) withDefaults() POIOptions {
	if o.IDColumn == "" {
		o.IDColumn = "id"
	}
	if o.LonColumn == "" {
		o.LonColumn = "lon"
	}
	if o.LatColumn == "" {
		o.LatColumn = "lat"
	}
	return o
}

// LoadPOIs reads points of interest with their tags. Polygonal features are
// reduced to their centroid. OSM extracts keep tagged nodes and tagged ways.
func (l *Loader) LoadPOIs(ctx context.Context, location string, opts POIOptions) ([]model.POI, error) {
	opts = opts.withDefaults()
	path, err := l.local(ctx, location)
	if err != nil {
		return nil, err
	}
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var pois []model.POI
	switch format {
	case FormatCSV, FormatTSV, FormatXLSX:
		pois, err = tabularPOIs(ctx, path, format, opts)
	case FormatGeoJSON:
		pois, err = geojsonPOIs(path, opts)
	case FormatOSM:
		pois, err = osmPOIs(ctx, path)
	default:
		return nil, model.NewConfigurationError("pois", "cannot read POIs from %s files", format)
	}
	if err != nil {
		return nil, err
	}
	zap.L().Info("dataset: loaded POIs", zap.String("path", path), zap.Int("pois", len(pois)))
	return pois, nil
}

func tabularPOIs(ctx context.Context, path string, format Format, opts POIOptions) ([]model.POI, error) {
	header, rows, err := readTabular(ctx, path, format, opts.Sheet)
	if err != nil {
		return nil, err
	}
	idIdx := columnIndex(header, opts.IDColumn)
	lonIdx := columnIndex(header, opts.LonColumn)
	latIdx := columnIndex(header, opts.LatColumn)
	for _, c := range []struct {
		name string
		idx  int
	}{{opts.LonColumn, lonIdx}, {opts.LatColumn, latIdx}} {
		if c.idx < 0 {
			return nil, &model.SchemaError{Table: "pois", Column: c.name, Reason: "missing column"}
		}
	}

	pois := make([]model.POI, 0, len(rows))
	for i, row := range rows {
		id := cell(row, idIdx)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		p, err := parsePoint(row, lonIdx, latIdx)
		if err != nil {
			return nil, &model.SchemaError{Table: "pois", Unit: id, Reason: err.Error()}
		}
		tags := make(map[string]string)
		for c, key := range header {
			if c == idIdx || c == lonIdx || c == latIdx || key == "" {
				continue
			}
			if v := cell(row, c); v != "" {
				tags[key] = v
			}
		}
		pois = append(pois, model.POI{ID: id, Point: p, Tags: tags})
	}
	return pois, nil
}

func geojsonPOIs(path string, opts POIOptions) ([]model.POI, error) {
	fc, err := readFeatures(path)
	if err != nil {
		return nil, err
	}
	pois := make([]model.POI, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := featureID(f, opts.IDColumn)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		p := geo.Centroid(f.Geometry)
		if !geo.ValidPoint(p) {
			zap.L().Debug("dataset: skipping POI without geometry", zap.String("id", id))
			continue
		}
		tags := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if k == opts.IDColumn || v == nil {
				continue
			}
			tags[k] = propertyString(v)
		}
		pois = append(pois, model.POI{ID: id, Point: p, Tags: tags})
	}
	return pois, nil
}

// osmPOIs scans an OSM XML extract. Tagged nodes become POIs at their
// location; tagged ways become POIs at the centroid of their node ring.
// Untagged nodes only serve as way vertices.
func osmPOIs(ctx context.Context, path string) ([]model.POI, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied input path
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	scanner := osmxml.New(ctx, f)
	defer scanner.Close() //nolint:errcheck

	nodes := make(map[osm.NodeID]orb.Point)
	var pois []model.POI
	var skipped int
	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			nodes[o.ID] = o.Point()
			if len(o.Tags) > 0 {
				pois = append(pois, model.POI{ID: o.FeatureID().String(), Point: o.Point(), Tags: o.Tags.Map()})
			}
		case *osm.Way:
			if len(o.Tags) == 0 {
				continue
			}
			p, ok := wayCentroid(o, nodes)
			if !ok {
				skipped++
				continue
			}
			pois = append(pois, model.POI{ID: o.FeatureID().String(), Point: p, Tags: o.Tags.Map()})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "dataset: scan osm %s", path)
	}
	if skipped > 0 {
		zap.L().Warn("dataset: skipped ways with unresolved nodes", zap.String("path", path), zap.Int("ways", skipped))
	}
	return pois, nil
}

func wayCentroid(w *osm.Way, nodes map[osm.NodeID]orb.Point) (orb.Point, bool) {
	ls := make(orb.LineString, 0, len(w.Nodes))
	for _, wn := range w.Nodes {
		if wn.Lat != 0 || wn.Lon != 0 {
			ls = append(ls, orb.Point{wn.Lon, wn.Lat})
			continue
		}
		p, ok := nodes[wn.ID]
		if !ok {
			return orb.Point{}, false
		}
		ls = append(ls, p)
	}
	if len(ls) == 0 {
		return orb.Point{}, false
	}
	var g orb.Geometry = ls
	if len(ls) >= 4 && ls[0].Equal(ls[len(ls)-1]) {
		g = orb.Polygon{orb.Ring(ls)}
	}
	c := geo.Centroid(g)
	return c, geo.ValidPoint(c)
}
