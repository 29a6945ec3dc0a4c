package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/access-cli/internal/accessibility"
	"github.com/sells-group/access-cli/internal/dataset"
	"github.com/sells-group/access-cli/internal/demand"
	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/geo"
	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/store"
	"github.com/sells-group/access-cli/internal/weights"
)

// Three units on a line, half a unit apart, 100 people each.
const lineUnitsCSV = "id,lon,lat,ind_25_39\nA,0,0,100\nB,0.5,0,100\nC,1.0,0,100\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func lineOptions(t *testing.T, dir string) Options {
	t.Helper()
	wc := weights.DefaultConfig()
	wc.Metric = geo.MetricEuclidean
	wc.Threshold = 1
	return Options{
		Name:       "line",
		UnitsPath:  writeFile(t, dir, "units.csv", lineUnitsCSV),
		SupplyPath: writeFile(t, dir, "supply.csv", "id,clinic\nA,0\nB,2\nC,0\n"),
		Weights:    wc,
		Profile:    demand.Profile{demand.Bucket25to39: 1},
	}
}

func TestRun_SupplyTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := lineOptions(t, dir)
	opts.OutputPath = filepath.Join(dir, "scores.csv")
	opts.MatrixOutputPath = filepath.Join(dir, "weights.csv")
	opts.DemandOutputPath = filepath.Join(dir, "demand.csv")

	res, err := New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, res.RunID)

	// catchment(B) = 0.2*100 + 100 + 0.2*100
	ratioB := 2.0 / 140
	accB, _ := res.Access.Scores.Value("B", "clinic")
	assert.InDelta(t, ratioB, accB, 1e-12)
	accA, _ := res.Access.Scores.Value("A", "clinic")
	accC, _ := res.Access.Scores.Value("C", "clinic")
	assert.InDelta(t, 0.2*ratioB, accA, 1e-12)
	assert.Equal(t, accA, accC)

	names := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"load", "supply", "weights", "demand", "accessibility", "export"}, names)

	data, err := os.ReadFile(opts.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id,clinic\n")

	// The exported matrix reloads to the same weights.
	m, err := dataset.NewLoader(nil, "").LoadMatrix(context.Background(), opts.MatrixOutputPath)
	require.NoError(t, err)
	for i := range m.Len() {
		assert.Equal(t, res.Weights.Row(i), m.Row(i))
	}

	data, err = os.ReadFile(opts.DemandOutputPath)
	require.NoError(t, err)
	assert.Equal(t, "id,demand\nA,100\nB,100\nC,100\n", string(data))

	require.NotNil(t, res.Summary)
	assert.Equal(t, 3, res.Summary.Units)
	require.Len(t, res.Summary.Categories, 1)
	assert.Equal(t, 2.0, res.Summary.Categories[0].TotalSupply)
	assert.Equal(t, 1, res.Summary.Categories[0].SupplyUnits)
}

func TestRun_PrecomputedWeights(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := lineOptions(t, dir)
	// Reverse order in the matrix; demand and supply follow it.
	opts.WeightsPath = writeFile(t, dir, "w.csv", "id,C,B,A\nC,1,0.2,0.1\nB,0.2,1,0.2\nA,0.1,0.2,1\n")

	res, err := New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, res.Access.Scores.Keys())
	assert.Equal(t, []float64{100, 100, 100}, res.Demand)
	accB, _ := res.Access.Scores.Value("B", "clinic")
	assert.InDelta(t, 2.0/140, accB, 1e-12)
}

func TestRun_WithStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := lineOptions(t, dir)
	opts.SaveUnits = true

	st := new(mockStore)
	st.On("CreateRun", mock.Anything, mock.MatchedBy(func(p model.RunParams) bool {
		return p.Name == "line" && p.Metric == "euclidean" && p.Threshold == 1
	})).Return(&model.Run{ID: "run-1", Status: model.RunStatusQueued}, nil)
	st.On("UpdateRunStatus", mock.Anything, "run-1", model.RunStatusRunning).Return(nil)
	st.On("SaveUnits", mock.Anything, mock.MatchedBy(func(u []model.SpatialUnit) bool { return len(u) == 3 })).
		Return(int64(3), nil)
	st.On("SaveScores", mock.Anything, "run-1", mock.MatchedBy(func(s []model.Score) bool {
		return len(s) == 3 && s[0].RunID == "run-1" && s[0].Category == "clinic"
	})).Return(int64(3), nil)
	st.On("CompleteRun", mock.Anything, "run-1", mock.MatchedBy(func(s *model.RunSummary) bool {
		return s.Units == 3 && len(s.Categories) == 1
	})).Return(nil)

	res, err := New(dataset.NewLoader(nil, ""), st).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "FailRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SchemaErrorFailsRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := lineOptions(t, dir)
	// Z is not a unit.
	opts.SupplyPath = writeFile(t, dir, "bad_supply.csv", "id,clinic\nA,0\nB,2\nZ,0\n")

	st := new(mockStore)
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-2"}, nil)
	st.On("UpdateRunStatus", mock.Anything, "run-2", model.RunStatusRunning).Return(nil)
	st.On("FailRun", mock.Anything, "run-2", mock.MatchedBy(func(reason string) bool {
		return len(reason) > 0
	})).Return(nil)

	_, err := New(dataset.NewLoader(nil, ""), st).Run(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, model.IsSchema(err), "got %v", err)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "SaveScores", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CreateRunError(t *testing.T) {
	t.Parallel()

	st := new(mockStore)
	st.On("CreateRun", mock.Anything, mock.Anything).Return(nil, eris.New("db down"))

	_, err := New(dataset.NewLoader(nil, ""), st).Run(context.Background(), lineOptions(t, t.TempDir()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create run")
}

func TestRun_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"no units", func(o *Options) { o.UnitsPath = "" }},
		{"no supply", func(o *Options) { o.SupplyPath = "" }},
		{"bad threshold", func(o *Options) { o.Weights.Threshold = -1 }},
		{"negative profile", func(o *Options) { o.Profile = demand.Profile{demand.Bucket0to3: -2} }},
		{"nearest without distance", func(o *Options) {
			o.SupplyPath = ""
			o.POIPath = "pois.csv"
			o.Attribution = AttributionNearest
		}},
		{"unknown attribution", func(o *Options) {
			o.SupplyPath = ""
			o.POIPath = "pois.csv"
			o.Attribution = "voronoi"
		}},
	}
	for _, tt := range tests {
		opts := lineOptions(t, dir)
		tt.modify(&opts)
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
			require.Error(t, err)
			assert.True(t, model.IsConfiguration(err), "got %v", err)
		})
	}
}

const gridUnitsCSV = "id,geometry,ind_25_39\n" +
	"west,\"POLYGON((0 0,1 0,1 1,0 1,0 0))\",50\n" +
	"east,\"POLYGON((1 0,2 0,2 1,1 1,1 0))\",50\n"

const gridPOIsCSV = "id,lon,lat,amenity\n" +
	"1,0.5,0.5,restaurant\n" +
	"2,0.2,0.8,cafe;library\n" +
	"3,1.5,0.5,school\n" +
	"4,5,5,restaurant\n" +
	"5,1.2,0.2,bench\n"

func TestRun_CountsPOIs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	wc := weights.DefaultConfig()
	wc.Metric = geo.MetricEuclidean
	wc.Threshold = 2
	opts := Options{
		UnitsPath: writeFile(t, dir, "grid.csv", gridUnitsCSV),
		POIPath:   writeFile(t, dir, "pois.csv", gridPOIsCSV),
		Total:     true,
		Weights:   wc,
		Profile:   demand.Profile{demand.Bucket25to39: 1},
	}

	res, err := New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"restaurant", "culture", "education", "total"}, res.Supply.Columns())

	v, _ := res.Supply.Value("west", "restaurant")
	assert.Equal(t, 2.0, v)
	v, _ = res.Supply.Value("west", "culture")
	assert.Equal(t, 1.0, v)
	v, _ = res.Supply.Value("east", "education")
	assert.Equal(t, 1.0, v)
	v, _ = res.Supply.Value("west", "total")
	assert.Equal(t, 3.0, v)

	assert.Equal(t, []string{"restaurant", "culture", "education", "total"}, res.Access.Categories())
	for _, c := range res.Access.Categories() {
		col, _ := res.Access.Scores.Column(c)
		for _, s := range col {
			assert.False(t, math.IsNaN(s))
			assert.GreaterOrEqual(t, s, 0.0)
		}
	}
}

func TestRun_SelectedCategories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	wc := weights.DefaultConfig()
	wc.Metric = geo.MetricEuclidean
	wc.Threshold = 2
	opts := Options{
		UnitsPath:  writeFile(t, dir, "grid.csv", gridUnitsCSV),
		POIPath:    writeFile(t, dir, "pois.csv", gridPOIsCSV),
		Categories: []string{"education"},
		Weights:    wc,
		Profile:    demand.Profile{demand.Bucket25to39: 1},
	}

	res, err := New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"education"}, res.Supply.Columns())
	assert.Equal(t, []string{"education"}, res.Access.Categories())
}

func TestRun_SupplyTableSelectedCategories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := lineOptions(t, dir)
	opts.SupplyPath = writeFile(t, dir, "supply2.csv", "id,clinic,school\nA,0,1\nB,2,0\nC,0,0\n")
	opts.Categories = []string{"school"}

	res, err := New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"school"}, res.Supply.Columns())
	require.Len(t, res.Summary.Categories, 1)
	assert.Equal(t, "school", res.Summary.Categories[0].Category)

	opts.Categories = []string{"pharmacy"}
	_, err = New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
	assert.True(t, model.IsSchema(err))
}

func TestRun_PointUnitsNeedNearest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := lineOptions(t, dir)
	opts.SupplyPath = ""
	opts.POIPath = writeFile(t, dir, "pois.csv", "id,lon,lat,amenity\n1,0.5,0.1,restaurant\n")

	_, err := New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, model.IsConfiguration(err))

	opts.Attribution = AttributionNearest
	opts.NearestDistance = 0.3
	res, err := New(dataset.NewLoader(nil, ""), nil).Run(context.Background(), opts)
	require.NoError(t, err)
	v, _ := res.Supply.Value("B", "restaurant")
	assert.Equal(t, 1.0, v)
}

func TestRun_SQLiteStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	res, err := New(dataset.NewLoader(nil, ""), st).Run(ctx, lineOptions(t, t.TempDir()))
	require.NoError(t, err)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 3, run.Summary.Units)

	scores, err := st.GetScores(ctx, res.RunID, store.ScoreFilter{UnitID: "B"})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.InDelta(t, 2.0/140, *scores[0].Value, 1e-12)
}

func TestSummarize_ExcludesDegenerate(t *testing.T) {
	t.Parallel()

	keys := []string{"a", "b"}
	scores := frame.MustNew("scores", keys)
	require.NoError(t, scores.AddColumn("clinic", []float64{0.5, math.Inf(1)}))
	require.NoError(t, scores.AddColumn("school", []float64{0, 0}))
	supply := frame.MustNew("supply", keys)
	require.NoError(t, supply.AddColumn("clinic", []float64{0, 3}))
	require.NoError(t, supply.AddColumn("school", []float64{0, 0}))

	res := &accessibility.Result{
		Scores:     scores,
		Degenerate: []model.DegenerateRatio{{Unit: "b", Category: "clinic", Supply: 3}},
	}
	s, err := Summarize(res, supply)
	require.NoError(t, err)
	require.Len(t, s.Categories, 2)

	clinic := s.Categories[0]
	assert.Equal(t, 3.0, clinic.TotalSupply)
	assert.Equal(t, 1, clinic.SupplyUnits)
	assert.Equal(t, 0.5, clinic.Min)
	assert.Equal(t, 0.5, clinic.Max)
	assert.Equal(t, 0.5, clinic.Mean)
	assert.Len(t, s.Degenerate, 1)

	school := s.Categories[1]
	assert.Zero(t, school.TotalSupply)
	assert.Zero(t, school.Max)
}
