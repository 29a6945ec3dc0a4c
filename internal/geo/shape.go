package geo

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// FromShape converts a go-shp shape to an orb geometry. Polygon parts become
// the rings of a single polygon when there is one outer ring, otherwise one
// polygon per part. Returns nil for unsupported or empty shapes.
func FromShape(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.Polygon:
		return polygonFromShape(s)
	default:
		return nil
	}
}

func polygonFromShape(p *shp.Polygon) orb.Geometry {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	rings := make([]orb.Ring, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		if len(ring) >= 4 {
			rings = append(rings, ring)
		}
	}

	switch len(rings) {
	case 0:
		return nil
	case 1:
		return orb.Polygon{rings[0]}
	}

	// Shapefiles store outer rings clockwise and holes counter-clockwise.
	var mp orb.MultiPolygon
	for _, r := range rings {
		if r.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{r})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], r)
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}
