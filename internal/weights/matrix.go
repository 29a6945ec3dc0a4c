// Package weights builds the distance-decay weight matrix between spatial
// units that the floating catchment computation runs on.
package weights

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/access-cli/internal/model"
)

// Matrix is a dense square weight matrix over an ordered key space.
// Values lie in [0,1]. It is read-only once built.
type Matrix struct {
	keys  []string
	index map[string]int
	dense *mat.Dense
}

// Neighbor is a non-zero entry of a matrix row.
type Neighbor struct {
	Index  int
	Key    string
	Weight float64
}

// NewMatrix validates and wraps an externally supplied matrix, such as one
// read from an interchange file. values[i][j] is W(keys[i], keys[j]).
func NewMatrix(keys []string, values [][]float64) (*Matrix, error) {
	m, err := newEmpty(keys)
	if err != nil {
		return nil, err
	}
	n := len(keys)
	if len(values) != n {
		return nil, model.NewSchemaError("weights", "matrix has %d rows for %d units", len(values), n)
	}
	for i, row := range values {
		if len(row) != n {
			return nil, &model.SchemaError{Table: "weights", Unit: keys[i], Reason: "row length does not match unit count"}
		}
		for j, v := range row {
			if math.IsNaN(v) || v < 0 || v > 1 {
				return nil, &model.SchemaError{
					Table:  "weights",
					Column: keys[j],
					Unit:   keys[i],
					Reason: "weight must be within [0,1]",
				}
			}
		}
		m.dense.SetRow(i, row)
	}
	return m, nil
}

func newEmpty(keys []string) (*Matrix, error) {
	if len(keys) == 0 {
		return nil, model.NewSchemaError("weights", "matrix has no units")
	}
	m := &Matrix{
		keys:  slices.Clone(keys),
		index: make(map[string]int, len(keys)),
		dense: mat.NewDense(len(keys), len(keys), nil),
	}
	for i, k := range keys {
		if k == "" {
			return nil, model.NewSchemaError("weights", "empty identifier at row %d", i)
		}
		if _, dup := m.index[k]; dup {
			return nil, &model.SchemaError{Table: "weights", Unit: k, Reason: "duplicate identifier"}
		}
		m.index[k] = i
	}
	return m, nil
}

// Len returns the number of units.
func (m *Matrix) Len() int { return len(m.keys) }

// Keys returns a copy of the unit keys in matrix order.
func (m *Matrix) Keys() []string { return slices.Clone(m.keys) }

// Key returns the key of row i.
func (m *Matrix) Key(i int) string { return m.keys[i] }

// Index returns the row of key.
func (m *Matrix) Index(key string) (int, bool) {
	i, ok := m.index[key]
	return i, ok
}

// Dense exposes the weights for linear algebra. Callers must not modify it.
func (m *Matrix) Dense() mat.Matrix { return m.dense }

// At returns W(i,j) by position.
func (m *Matrix) At(i, j int) float64 { return m.dense.At(i, j) }

// Get returns W(a,b) by key.
func (m *Matrix) Get(a, b string) (float64, bool) {
	i, ok := m.index[a]
	if !ok {
		return 0, false
	}
	j, ok := m.index[b]
	if !ok {
		return 0, false
	}
	return m.At(i, j), true
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	return mat.Row(nil, i, m.dense)
}

// Neighbors returns the non-zero entries of row i, the catchment of unit i,
// including itself.
func (m *Matrix) Neighbors(i int) []Neighbor {
	var out []Neighbor
	for j, w := range m.dense.RawRowView(i) {
		if w > 0 {
			out = append(out, Neighbor{Index: j, Key: m.keys[j], Weight: w})
		}
	}
	return out
}

// NonZero counts the non-zero entries.
func (m *Matrix) NonZero() int {
	count := 0
	for i := range m.keys {
		for _, w := range m.dense.RawRowView(i) {
			if w > 0 {
				count++
			}
		}
	}
	return count
}

// Symmetric reports whether W(i,j) and W(j,i) agree within tol, absolute or
// relative, for every pair.
func (m *Matrix) Symmetric(tol float64) bool {
	return mat.EqualApprox(m.dense, m.dense.T(), tol)
}
