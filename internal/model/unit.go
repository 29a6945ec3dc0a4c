// Package model defines the domain types shared by the accessibility engine,
// its loaders, and the run store.
package model

import (
	"github.com/paulmach/orb"
)

// SpatialUnit is a geographic unit of analysis: a grid cell, census tract or
// any polygon with a stable identifier. Demographic columns for the unit live
// in a frame.Table keyed by ID.
type SpatialUnit struct {
	ID       string       `json:"id"`
	Geometry orb.Geometry `json:"-"`
	// Centroid is the reference point used for distance computations.
	Centroid orb.Point `json:"centroid"`
}

// Region is a polygonal area used to attribute points of interest.
type Region struct {
	ID       string       `json:"id"`
	Geometry orb.Geometry `json:"-"`
}

// POI is a point of interest with its OSM-style tags.
type POI struct {
	ID    string            `json:"id"`
	Point orb.Point         `json:"point"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Tag returns the value for key, or "" when absent.
func (p POI) Tag(key string) string {
	if p.Tags == nil {
		return ""
	}
	return p.Tags[key]
}

// Regions converts units to regions, dropping units without polygonal geometry.
func Regions(units []SpatialUnit) []Region {
	regions := make([]Region, 0, len(units))
	for _, u := range units {
		switch u.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon, orb.Bound:
			regions = append(regions, Region{ID: u.ID, Geometry: u.Geometry})
		}
	}
	return regions
}
