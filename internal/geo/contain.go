package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Contains reports whether the polygonal geometry g contains p. Points on
// the boundary follow orb's planar rules. Non-polygonal geometries contain
// nothing.
func Contains(g orb.Geometry, p orb.Point) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return v.Bound().Contains(p) && planar.PolygonContains(v, p)
	case orb.MultiPolygon:
		return v.Bound().Contains(p) && planar.MultiPolygonContains(v, p)
	case orb.Ring:
		return v.Bound().Contains(p) && planar.RingContains(v, p)
	case orb.Bound:
		return v.Contains(p)
	default:
		return false
	}
}
