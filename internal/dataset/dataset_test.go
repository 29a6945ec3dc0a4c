package dataset

import (
	"archive/zip"
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/access-cli/internal/fetcher"
	"github.com/sells-group/access-cli/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Format
	}{
		{"units.csv", FormatCSV},
		{"units.TSV", FormatTSV},
		{"pop.xlsx", FormatXLSX},
		{"grid.geojson", FormatGeoJSON},
		{"grid.json", FormatGeoJSON},
		{"iris.shp", FormatShapefile},
		{"iris.zip", FormatZIP},
		{"paris.osm", FormatOSM},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, err := DetectFormat(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectFormat("units.parquet")
	assert.True(t, model.IsConfiguration(err))
}

func TestLoadUnits_CSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "units.csv", "id,name,lon,lat,ind_0_3,ind_25_39\n"+
		"a,Louvre,2.3376,48.8606,10,20\n"+
		"b,Chatelet,2.3470,48.8583,5,\n")

	l := NewLoader(nil, "")
	units, tbl, err := l.LoadUnits(context.Background(), path, UnitOptions{})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "a", units[0].ID)
	assert.Equal(t, orb.Point{2.3376, 48.8606}, units[0].Centroid)

	// Non-numeric name column is dropped; coordinates are not attributes.
	assert.Equal(t, []string{"ind_0_3", "ind_25_39"}, tbl.Columns())
	v, ok := tbl.Value("a", "ind_25_39")
	require.True(t, ok)
	assert.Equal(t, 20.0, v)
	v, _ = tbl.Value("b", "ind_25_39")
	assert.True(t, math.IsNaN(v), "empty cell should load as NaN")
}

func TestLoadUnits_BadCellInNumericColumn(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	dir := t.TempDir()
	path := writeFile(t, dir, "units.csv", "id,name,lon,lat,ind_0_3,ind_25_39\n"+
		"a,Louvre,2.3376,48.8606,10,20\n"+
		"b,Chatelet,2.3470,48.8583,n/a,5\n")

	_, tbl, err := NewLoader(nil, "").LoadUnits(context.Background(), path, UnitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ind_25_39"}, tbl.Columns())

	// The text column is dropped quietly, the broken numeric one loudly.
	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ind_0_3", fields["column"])
	assert.Equal(t, "b", fields["unit"])
	assert.Equal(t, "n/a", fields["value"])
}

func TestLoadUnits_WKT(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "units.tsv", "code\tgeometry\tind_0_3\n"+
		"c1\tPOLYGON((0 0,2 0,2 2,0 2,0 0))\t3\n"+
		"c2\tPOINT(5 5)\t4\n")

	units, tbl, err := NewLoader(nil, "").LoadUnits(context.Background(), path, UnitOptions{IDColumn: "code"})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.IsType(t, orb.Polygon{}, units[0].Geometry)
	assert.InDelta(t, 1, units[0].Centroid[0], 1e-9)
	assert.InDelta(t, 1, units[0].Centroid[1], 1e-9)
	assert.Equal(t, orb.Point{5, 5}, units[1].Centroid)
	assert.Equal(t, []string{"ind_0_3"}, tbl.Columns())
}

func TestLoadUnits_SchemaErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", "name,lon,lat\nx,1,2\n"},
		{"no geometry columns", "id,ind_0_3\na,1\n"},
		{"bad longitude", "id,lon,lat\na,east,2\n"},
		{"bad wkt", "id,geometry\na,POLYGON((oops\n"},
		{"duplicate id", "id,lon,lat\na,1,2\na,2,3\n"},
	}
	for i, tt := range tests {
		path := writeFile(t, dir, filepath.Base(t.Name())+string(rune('a'+i))+".csv", tt.content)
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewLoader(nil, "").LoadUnits(context.Background(), path, UnitOptions{})
			require.Error(t, err)
			assert.True(t, model.IsSchema(err), "got %v", err)
		})
	}
}

const unitsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "f1",
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]},
     "properties": {"code": "r0c0", "label": "north", "ind_0_3": 12, "ind_80p": 3}},
    {"type": "Feature", "id": "f2",
     "geometry": {"type": "Polygon", "coordinates": [[[1,0],[2,0],[2,1],[1,1],[1,0]]]},
     "properties": {"code": "r0c1", "label": "south", "ind_0_3": 7}}
  ]
}`

func TestLoadUnits_GeoJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "grid.geojson", unitsGeoJSON)
	units, tbl, err := NewLoader(nil, "").LoadUnits(context.Background(), path, UnitOptions{IDColumn: "code"})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "r0c0", units[0].ID)
	assert.InDelta(t, 1.5, units[1].Centroid[0], 1e-9)

	assert.Equal(t, []string{"ind_0_3", "ind_80p"}, tbl.Columns())
	v, _ := tbl.Value("r0c1", "ind_0_3")
	assert.Equal(t, 7.0, v)

	// Without the property the feature id is used.
	units, _, err = NewLoader(nil, "").LoadUnits(context.Background(), path, UnitOptions{})
	require.NoError(t, err)
	assert.Equal(t, "f1", units[0].ID)
}

func writeShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "iris.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("ID", 10),
		shp.FloatField("IND_0_3", 12, 2),
	}))

	squares := [][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}},
		{{X: 2, Y: 0}, {X: 2, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 0}, {X: 2, Y: 0}},
	}
	for i, sq := range squares {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{sq}))
		row := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(row, 0, []string{"751010101", "751010102"}[i]))
		require.NoError(t, w.WriteAttribute(row, 1, []float64{120.5, 80}[i]))
	}
	w.Close()
	return path
}

func TestLoadUnits_Shapefile(t *testing.T) {
	t.Parallel()

	path := writeShapefile(t, t.TempDir())
	units, tbl, err := NewLoader(nil, "").LoadUnits(context.Background(), path, UnitOptions{IDColumn: "ID"})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "751010101", units[0].ID)
	assert.InDelta(t, 2.5, units[1].Centroid[0], 1e-9)

	v, ok := tbl.Value("751010101", "IND_0_3")
	require.True(t, ok)
	assert.InDelta(t, 120.5, v, 1e-9)
}

func TestLoadUnits_ZippedShapefile(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeShapefile(t, src)

	zipPath := filepath.Join(t.TempDir(), "iris.zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(filepath.Join(src, "iris"+ext))
		require.NoError(t, err)
		fw, err := zw.Create("iris" + ext)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	l := NewLoader(nil, t.TempDir())
	units, _, err := l.LoadUnits(context.Background(), zipPath, UnitOptions{IDColumn: "id"})
	require.NoError(t, err)
	assert.Len(t, units, 2)
	require.NoError(t, l.Close())
}

func TestLoadUnits_Remote(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "id,lon,lat,ind_0_3\na,2.3,48.8,1\nb,2.4,48.9,2\n")
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 1})
	l := NewLoader(f, t.TempDir())
	defer l.Close() //nolint:errcheck

	units, tbl, err := l.LoadUnits(context.Background(), srv.URL+"/data/units.csv", UnitOptions{})
	require.NoError(t, err)
	assert.Len(t, units, 2)
	assert.Equal(t, []string{"ind_0_3"}, tbl.Columns())
}

func TestLoadUnits_RemoteWithoutFetcher(t *testing.T) {
	t.Parallel()

	_, _, err := NewLoader(nil, "").LoadUnits(context.Background(), "https://example.com/units.csv", UnitOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fetcher")
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "supply.csv", "id,restaurant,culture\nb,2,0\na,1,3\n")
	tbl, err := NewLoader(nil, "").LoadTable(context.Background(), path, "supply", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, tbl.Keys())
	v, _ := tbl.Value("a", "culture")
	assert.Equal(t, 3.0, v)

	bad := writeFile(t, dir, "bad.csv", "id,restaurant\na,two\n")
	_, err = NewLoader(nil, "").LoadTable(context.Background(), bad, "supply", "", "")
	require.Error(t, err)
	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "restaurant", se.Column)
	assert.Equal(t, "a", se.Unit)
}

func TestLoadPOIs_CSV(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "pois.csv", "id,lon,lat,amenity,cuisine\n"+
		"1,2.35,48.85,restaurant,french\n"+
		"2,2.36,48.86,museum,\n")
	pois, err := NewLoader(nil, "").LoadPOIs(context.Background(), path, POIOptions{})
	require.NoError(t, err)
	require.Len(t, pois, 2)
	assert.Equal(t, map[string]string{"amenity": "restaurant", "cuisine": "french"}, pois[0].Tags)
	assert.Equal(t, map[string]string{"amenity": "museum"}, pois[1].Tags)
	assert.Equal(t, orb.Point{2.36, 48.86}, pois[1].Point)
}

func TestLoadPOIs_GeoJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "pois.geojson", `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 101, "geometry": {"type": "Point", "coordinates": [2.35, 48.85]},
     "properties": {"amenity": "cafe;bar"}},
    {"type": "Feature", "id": 102,
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[4,0],[4,2],[0,2],[0,0]]]},
     "properties": {"amenity": "school", "levels": 3}},
    {"type": "Feature", "id": 103, "geometry": null, "properties": {"amenity": "bench"}}
  ]
}`)
	pois, err := NewLoader(nil, "").LoadPOIs(context.Background(), path, POIOptions{})
	require.NoError(t, err)
	require.Len(t, pois, 2)
	assert.Equal(t, "101", pois[0].ID)
	assert.Equal(t, "cafe;bar", pois[0].Tag("amenity"))
	assert.InDelta(t, 2, pois[1].Point[0], 1e-9)
	assert.InDelta(t, 1, pois[1].Point[1], 1e-9)
	assert.Equal(t, "3", pois[1].Tag("levels"))
}

const extractOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="48.85" lon="2.35" version="1">
    <tag k="amenity" v="restaurant"/>
    <tag k="name" v="Chez Nous"/>
  </node>
  <node id="2" lat="48.80" lon="2.30" version="1"/>
  <node id="3" lat="48.80" lon="2.32" version="1"/>
  <node id="4" lat="48.82" lon="2.32" version="1"/>
  <node id="5" lat="48.82" lon="2.30" version="1"/>
  <node id="6" lat="48.90" lon="2.40" version="1"/>
  <way id="10" version="1">
    <nd ref="2"/><nd ref="3"/><nd ref="4"/><nd ref="5"/><nd ref="2"/>
    <tag k="amenity" v="school"/>
  </way>
  <way id="11" version="1">
    <nd ref="2"/><nd ref="99"/>
    <tag k="amenity" v="parking"/>
  </way>
  <way id="12" version="1">
    <nd ref="2"/><nd ref="3"/>
  </way>
</osm>`

func TestLoadPOIs_OSM(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "paris.osm", extractOSM)
	pois, err := NewLoader(nil, "").LoadPOIs(context.Background(), path, POIOptions{})
	require.NoError(t, err)
	require.Len(t, pois, 2)

	assert.Equal(t, "node/1", pois[0].ID)
	assert.Equal(t, "restaurant", pois[0].Tag("amenity"))
	assert.Equal(t, "Chez Nous", pois[0].Tag("name"))
	assert.Equal(t, orb.Point{2.35, 48.85}, pois[0].Point)

	assert.Equal(t, "way/10", pois[1].ID)
	assert.Equal(t, "school", pois[1].Tag("amenity"))
	assert.InDelta(t, 2.31, pois[1].Point[0], 1e-9)
	assert.InDelta(t, 48.81, pois[1].Point[1], 1e-9)
}

func TestLoadPOIs_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := writeShapefile(t, t.TempDir())
	_, err := NewLoader(nil, "").LoadPOIs(context.Background(), path, POIOptions{})
	assert.True(t, model.IsConfiguration(err))
}

func TestLoadMatrix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "w.csv", "id,a,b,c\n"+
		"c,0,0.5,1\n"+
		"a,1,0.2,0\n"+
		"b,0.2,1,0.5\n")
	m, err := NewLoader(nil, "").LoadMatrix(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
	w, _ := m.Get("a", "b")
	assert.Equal(t, 0.2, w)
	w, _ = m.Get("c", "b")
	assert.Equal(t, 0.5, w)

	tests := []struct {
		name    string
		content string
	}{
		{"missing row", "id,a,b\na,1,0\n"},
		{"extra row", "id,a\na,1\nz,1\n"},
		{"duplicate row", "id,a,b\na,1,0\na,1,0\nb,0,1\n"},
		{"not a number", "id,a,b\na,1,x\nb,0,1\n"},
		{"out of range", "id,a,b\na,1,2\nb,0,1\n"},
		{"empty cell", "id,a,b\na,1,\nb,0,1\n"},
	}
	for i, tt := range tests {
		p := writeFile(t, dir, "bad"+string(rune('a'+i))+".csv", tt.content)
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(nil, "").LoadMatrix(context.Background(), p)
			require.Error(t, err)
			assert.True(t, model.IsSchema(err), "got %v", err)
		})
	}
}
