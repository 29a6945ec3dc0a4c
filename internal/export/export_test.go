package export

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/access-cli/internal/category"
	"github.com/sells-group/access-cli/internal/dataset"
	"github.com/sells-group/access-cli/internal/fetcher"
	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/geo"
	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/weights"
)

func scoreTable(t *testing.T) *frame.Table {
	t.Helper()
	tbl := frame.MustNew("scores", []string{"a", "b", "c"})
	require.NoError(t, tbl.AddColumn("clinic", []float64{0.05, 0.125, math.Inf(1)}))
	require.NoError(t, tbl.AddColumn("school", []float64{0, 1, 2.5}))
	return tbl
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "inf", FormatValue(math.Inf(1)))
	assert.Equal(t, "-inf", FormatValue(math.Inf(-1)))
	assert.Equal(t, "", FormatValue(math.NaN()))
	assert.Equal(t, "0.1", FormatValue(0.1))
	assert.Equal(t, "0", FormatValue(0))
	assert.Equal(t, "1e-07", FormatValue(1e-7))
}

func TestFormatFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatCSV, FormatFor("out.csv"))
	assert.Equal(t, FormatTSV, FormatFor("out.TSV"))
	assert.Equal(t, FormatXLSX, FormatFor("out.xlsx"))
	assert.Equal(t, FormatCSV, FormatFor("out"))

	f, err := ParseFormat("Table")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)
	_, err = ParseFormat("parquet")
	assert.True(t, model.IsConfiguration(err))
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, scoreTable(t), ','))
	assert.Equal(t, "id,clinic,school\na,0.05,0\nb,0.125,1\nc,inf,2.5\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, scoreTable(t), FormatTSV))
	assert.True(t, strings.HasPrefix(buf.String(), "id\tclinic\tschool\n"))
}

func TestWriteTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, scoreTable(t), FormatTable))
	out := buf.String()
	assert.Contains(t, out, "clinic")
	assert.Contains(t, out, "0.125000")
	assert.Contains(t, out, "inf")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scores.xlsx")
	require.NoError(t, WriteFile(path, scoreTable(t)))

	header, rows, err := fetcher.ReadXLSXTable(path, fetcher.XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "clinic", "school"}, header)
	require.Len(t, rows, 3)
	assert.Equal(t, "b", rows[1][0])
	v, err := strconv.ParseFloat(rows[1][1], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, v, 1e-12)
	assert.Equal(t, "inf", rows[2][1])
}

func TestWriteFile_TSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scores.tsv")
	require.NoError(t, WriteFile(path, scoreTable(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id\tclinic\tschool\na\t0.05\t0\nb\t0.125\t1\nc\tinf\t2.5\n", string(data))
}

func TestWriteMatrixCSV(t *testing.T) {
	t.Parallel()

	m, err := weights.NewMatrix([]string{"a", "b"}, [][]float64{{1, 0.2}, {0.2, 1}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMatrixCSV(&buf, m, ','))
	assert.Equal(t, "id,a,b\na,1,0.2\nb,0.2,1\n", buf.String())
}

func TestWriteNeighbors(t *testing.T) {
	t.Parallel()

	m, err := weights.NewMatrix([]string{"a", "b", "c"}, [][]float64{
		{1, 0.2, 0},
		{0.2, 1, 0},
		{0, 0, 1},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteNeighbors(&buf, m, '\t'))
	assert.Equal(t, "id\tneighbor\tweight\na\ta\t1\na\tb\t0.2\nb\ta\t0.2\nb\tb\t1\nc\tc\t1\n", buf.String())
}

func TestWriteTagCounts(t *testing.T) {
	t.Parallel()

	counts := []category.TagCount{{Value: "restaurant", Count: 3}, {Value: "bar", Count: 1}}

	var buf bytes.Buffer
	require.NoError(t, WriteTagCounts(&buf, counts, FormatCSV))
	assert.Equal(t, "value,count\nrestaurant,3\nbar,1\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteTagCounts(&buf, counts, FormatTable))
	assert.Contains(t, buf.String(), "restaurant  3")
}

func TestScores_RoundTrip(t *testing.T) {
	t.Parallel()

	scores := Scores("run-1", scoreTable(t))
	require.Len(t, scores, 6)

	// Category-major order.
	assert.Equal(t, "clinic", scores[0].Category)
	assert.Equal(t, "a", scores[0].UnitID)
	assert.Equal(t, "run-1", scores[0].RunID)
	require.NotNil(t, scores[1].Value)
	assert.Equal(t, 0.125, *scores[1].Value)

	// The degenerate cell has no value.
	assert.True(t, scores[2].Degenerate)
	assert.Nil(t, scores[2].Value)
	assert.False(t, scores[3].Degenerate)

	tbl, err := ScoreTable("scores", scores)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Keys())
	assert.Equal(t, []string{"clinic", "school"}, tbl.Columns())
	v, _ := tbl.Value("c", "clinic")
	assert.True(t, math.IsInf(v, 1))
	v, _ = tbl.Value("c", "school")
	assert.Equal(t, 2.5, v)
}

func TestWriteUnitsCSV(t *testing.T) {
	t.Parallel()

	units, err := geo.SquareGrid(orb.Bound{Min: orb.Point{2.30, 48.80}, Max: orb.Point{2.31, 48.81}}, 500)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "grid.csv")
	var buf bytes.Buffer
	require.NoError(t, WriteUnitsCSV(&buf, units, ','))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	assert.True(t, strings.HasPrefix(buf.String(), "id,lon,lat,geometry\nr0c0,"))

	loaded, tbl, err := dataset.NewLoader(nil, "").LoadUnits(context.Background(), path, dataset.UnitOptions{})
	require.NoError(t, err)
	require.Len(t, loaded, len(units))
	assert.Empty(t, tbl.Columns())
	for i, u := range loaded {
		assert.Equal(t, units[i].ID, u.ID)
		assert.IsType(t, orb.Polygon{}, u.Geometry)
		assert.InDelta(t, units[i].Centroid[0], u.Centroid[0], 1e-9)
		assert.InDelta(t, units[i].Centroid[1], u.Centroid[1], 1e-9)
	}
}
