// Package geo provides the spatial primitives the accessibility engine needs:
// distances between reference points, centroids, point-in-polygon tests,
// square grids and EWKB encoding for PostGIS.
package geo

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/sells-group/access-cli/internal/model"
)

// Metric selects how distances between reference points are measured.
type Metric string

const (
	// MetricHaversine measures great-circle distance in meters between
	// WGS-84 lon/lat points.
	MetricHaversine Metric = "haversine"
	// MetricEuclidean measures planar distance in coordinate units, for
	// projected data.
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric maps a configuration string to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricHaversine:
		return MetricHaversine, nil
	case MetricEuclidean:
		return MetricEuclidean, nil
	default:
		return "", model.NewConfigurationError("metric", "unknown distance metric %q", s)
	}
}

// Distance returns the distance between a and b under metric m.
func Distance(m Metric, a, b orb.Point) float64 {
	if m == MetricEuclidean {
		return planar.Distance(a, b)
	}
	return orbgeo.Distance(a, b)
}

// Centroid returns the reference point of a geometry: the point itself, or
// the area-weighted centroid of a polygonal geometry. Degenerate polygons
// fall back to the center of their bounding box.
func Centroid(g orb.Geometry) orb.Point {
	switch v := g.(type) {
	case nil:
		return orb.Point{math.NaN(), math.NaN()}
	case orb.Point:
		return v
	case orb.Bound:
		return v.Center()
	}
	c, area := planar.CentroidArea(g)
	if area == 0 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return g.Bound().Center()
	}
	return c
}

// ValidPoint reports whether p has finite coordinates.
func ValidPoint(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
