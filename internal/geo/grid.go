package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/sells-group/access-cli/internal/model"
)

// MetersPerDegree is the approximate length of one degree of latitude.
const MetersPerDegree = 111_320.0

// maxGridCells bounds SquareGrid so a typo in the cell size cannot exhaust
// memory.
const maxGridCells = 1_000_000

// SquareGrid covers bound with square cells of roughly cellMeters on a side
// and returns them as spatial units. Longitude steps are widened by the
// cosine of the bound's center latitude so cells stay square on the ground.
// Unit IDs are "r<row>c<col>" counted from the south-west corner.
func SquareGrid(bound orb.Bound, cellMeters float64) ([]model.SpatialUnit, error) {
	if cellMeters <= 0 || math.IsNaN(cellMeters) {
		return nil, model.NewConfigurationError("cell_size", "must be positive, got %g", cellMeters)
	}
	if bound.IsEmpty() || bound.Max[0] <= bound.Min[0] || bound.Max[1] <= bound.Min[1] {
		return nil, model.NewConfigurationError("bbox", "bounding box has no area")
	}

	dLat := cellMeters / MetersPerDegree
	cosLat := math.Cos(bound.Center()[1] * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	dLon := dLat / cosLat

	fRows := math.Ceil((bound.Max[1] - bound.Min[1]) / dLat)
	fCols := math.Ceil((bound.Max[0] - bound.Min[0]) / dLon)
	if fRows*fCols > maxGridCells {
		return nil, model.NewConfigurationError("cell_size", "grid of %.0fx%.0f cells exceeds %d", fRows, fCols, maxGridCells)
	}
	rows, cols := int(fRows), int(fCols)

	units := make([]model.SpatialUnit, 0, rows*cols)
	for r := range rows {
		for c := range cols {
			cell := orb.Bound{
				Min: orb.Point{bound.Min[0] + float64(c)*dLon, bound.Min[1] + float64(r)*dLat},
				Max: orb.Point{bound.Min[0] + float64(c+1)*dLon, bound.Min[1] + float64(r+1)*dLat},
			}
			units = append(units, model.SpatialUnit{
				ID:       fmt.Sprintf("r%dc%d", r, c),
				Geometry: cell.ToPolygon(),
				Centroid: cell.Center(),
			})
		}
	}
	return units, nil
}
