// Package demand turns demographic sub-population columns into a per-unit
// demand vector using an age weight profile.
package demand

import (
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/access-cli/internal/frame"
	"github.com/sells-group/access-cli/internal/model"
)

// Canonical demographic buckets of the population grid, youngest first.
// BucketUnknown holds individuals of unknown age.
const (
	Bucket0to3    = "ind_0_3"
	Bucket4to5    = "ind_4_5"
	Bucket6to10   = "ind_6_10"
	Bucket11to17  = "ind_11_17"
	Bucket18to24  = "ind_18_24"
	Bucket25to39  = "ind_25_39"
	Bucket40to54  = "ind_40_54"
	Bucket55to64  = "ind_55_64"
	Bucket65to79  = "ind_65_79"
	Bucket80Plus  = "ind_80p"
	BucketUnknown = "ind_inc"
)

// Column is the name of the single column produced by AsTable.
const Column = "demand"

// Buckets returns the canonical bucket names in order.
func Buckets() []string {
	return []string{
		Bucket0to3, Bucket4to5, Bucket6to10, Bucket11to17, Bucket18to24,
		Bucket25to39, Bucket40to54, Bucket55to64, Bucket65to79, Bucket80Plus,
		BucketUnknown,
	}
}

// Profile maps a demographic bucket to its demand multiplier. Buckets absent
// from the profile contribute nothing.
type Profile map[string]float64

// DefaultProfile weights every canonical bucket at 1, so demand equals the
// raw population.
func DefaultProfile() Profile {
	p := make(Profile, len(Buckets()))
	for _, b := range Buckets() {
		p[b] = 1
	}
	return p
}

// Validate rejects negative or non-finite multipliers.
func (p Profile) Validate() error {
	for _, b := range p.Buckets() {
		w := p[b]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return model.NewConfigurationError("demand.profile."+b, "weight must be a non-negative number, got %g", w)
		}
	}
	return nil
}

// Buckets returns the profile's bucket names, sorted.
func (p Profile) Buckets() []string {
	return slices.Sorted(maps.Keys(p))
}

// Scale returns a copy of the profile with every weight multiplied by k.
func (p Profile) Scale(k float64) Profile {
	out := make(Profile, len(p))
	for b, w := range p {
		out[b] = w * k
	}
	return out
}

// Merge returns a copy of p with overrides applied on top.
func (p Profile) Merge(overrides map[string]float64) Profile {
	out := maps.Clone(p)
	if out == nil {
		out = make(Profile, len(overrides))
	}
	maps.Copy(out, overrides)
	return out
}

// Compute returns demand per unit, in the table's key order:
//
//	demand(u) = sum over buckets of pop[u][bucket] * weight[bucket]
//
// Every bucket named by the profile must be a column of units. Missing
// columns and negative or NaN cells are a SchemaError.
func Compute(units *frame.Table, profile Profile) ([]float64, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	out := make([]float64, units.Len())
	for _, bucket := range profile.Buckets() {
		if !units.HasColumn(bucket) {
			return nil, &model.SchemaError{
				Table:  units.Name(),
				Column: bucket,
				Reason: "demographic column is missing or was dropped at load for holding non-numeric cells",
			}
		}
		col, _ := units.Column(bucket)
		for i, v := range col {
			if math.IsNaN(v) || v < 0 {
				return nil, &model.SchemaError{
					Table:  units.Name(),
					Column: bucket,
					Unit:   units.Key(i),
					Reason: "population must be a non-negative number",
				}
			}
		}
		if w := profile[bucket]; w != 0 {
			floats.AddScaled(out, w, col)
		}
	}
	return out, nil
}

// AsTable computes demand and wraps it as a one-column table keyed like
// units.
func AsTable(units *frame.Table, profile Profile) (*frame.Table, error) {
	d, err := Compute(units, profile)
	if err != nil {
		return nil, err
	}
	t, err := frame.New("demand", units.Keys())
	if err != nil {
		return nil, err
	}
	if err := t.AddColumn(Column, d); err != nil {
		return nil, err
	}
	return t, nil
}
