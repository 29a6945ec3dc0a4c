package geo

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// SRID is the spatial reference stored with every encoded geometry.
const SRID = 4326

// EncodeEWKB converts an orb geometry to EWKB bytes with SRID 4326.
// Returns nil, nil for unsupported or empty geometries.
func EncodeEWKB(g orb.Geometry) ([]byte, error) {
	var t geom.T

	switch v := g.(type) {
	case nil:
		return nil, nil
	case orb.Point:
		if !ValidPoint(v) {
			return nil, nil
		}
		t = geom.NewPointFlat(geom.XY, []float64{v[0], v[1]}).SetSRID(SRID)
	case orb.Bound:
		t = polygonsToMultiPolygon([]orb.Polygon{v.ToPolygon()})
	case orb.Polygon:
		t = polygonsToMultiPolygon([]orb.Polygon{v})
	case orb.MultiPolygon:
		t = polygonsToMultiPolygon(v)
	default:
		return nil, nil
	}

	if t == nil {
		return nil, nil
	}

	data, err := ewkb.Marshal(t, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

// polygonsToMultiPolygon converts orb polygons to a geom.MultiPolygon,
// skipping malformed rings.
func polygonsToMultiPolygon(polys []orb.Polygon) geom.T {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRID)

	for i, p := range polys {
		poly := geom.NewPolygon(geom.XY)
		for _, ring := range p {
			if len(ring) < 4 {
				continue
			}
			lr := geom.NewLinearRingFlat(geom.XY, flatRing(ring))
			if err := poly.Push(lr); err != nil {
				zap.L().Debug("geo: skipping malformed polygon ring", zap.Int("polygon", i), zap.Error(err))
			}
		}
		if poly.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon", zap.Int("polygon", i), zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func flatRing(r orb.Ring) []float64 {
	flat := make([]float64, 0, len(r)*2)
	for _, p := range r {
		flat = append(flat, p[0], p[1])
	}
	return flat
}
