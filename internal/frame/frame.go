// Package frame provides Table, a unit-keyed ordered table of numeric
// columns. Every table in an analysis run (units, supply, demand, scores)
// shares one key space; Align enforces that.
package frame

import (
	"math"
	"slices"

	"github.com/sells-group/access-cli/internal/model"
)

// Table is an ordered mapping from unit identifier to named float64 columns.
// Columns are stored in key order. A Table is built once and then treated as
// read-only: accessors return copies.
type Table struct {
	name  string
	keys  []string
	index map[string]int
	names []string
	cols  map[string][]float64
}

// New creates an empty table over the given keys. Empty or duplicate keys
// are a SchemaError.
func New(name string, keys []string) (*Table, error) {
	t := &Table{
		name:  name,
		keys:  make([]string, len(keys)),
		index: make(map[string]int, len(keys)),
		cols:  make(map[string][]float64),
	}
	copy(t.keys, keys)
	for i, k := range keys {
		if k == "" {
			return nil, model.NewSchemaError(name, "empty identifier at row %d", i)
		}
		if _, dup := t.index[k]; dup {
			return nil, &model.SchemaError{Table: name, Unit: k, Reason: "duplicate identifier"}
		}
		t.index[k] = i
	}
	return t, nil
}

// MustNew is New for statically known keys; it panics on error.
func MustNew(name string, keys []string) *Table {
	t, err := New(name, keys)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table name used in error messages.
func (t *Table) Name() string { return t.name }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.keys) }

// Keys returns a copy of the row identifiers in order.
func (t *Table) Keys() []string { return slices.Clone(t.keys) }

// Key returns the identifier of row i.
func (t *Table) Key(i int) string { return t.keys[i] }

// Index returns the row of key.
func (t *Table) Index(key string) (int, bool) {
	i, ok := t.index[key]
	return i, ok
}

// Columns returns the column names in insertion order.
func (t *Table) Columns() []string { return slices.Clone(t.names) }

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// AddColumn appends a column. The values must line up with the keys.
func (t *Table) AddColumn(name string, values []float64) error {
	if name == "" {
		return model.NewSchemaError(t.name, "empty column name")
	}
	if _, exists := t.cols[name]; exists {
		return &model.SchemaError{Table: t.name, Column: name, Reason: "duplicate column"}
	}
	if len(values) != len(t.keys) {
		return &model.SchemaError{
			Table:  t.name,
			Column: name,
			Reason: "column length does not match row count",
		}
	}
	t.names = append(t.names, name)
	t.cols[name] = slices.Clone(values)
	return nil
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	c, ok := t.cols[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(c), true
}

// RequireColumn is Column but reports a missing column as a SchemaError.
func (t *Table) RequireColumn(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, &model.SchemaError{Table: t.name, Column: name, Reason: "missing column"}
	}
	return c, nil
}

// At returns the value at row i of the named column, or NaN when the column
// does not exist.
func (t *Table) At(i int, name string) float64 {
	c, ok := t.cols[name]
	if !ok {
		return math.NaN()
	}
	return c[i]
}

// Value returns the cell for key and column.
func (t *Table) Value(key, name string) (float64, bool) {
	i, ok := t.index[key]
	if !ok {
		return 0, false
	}
	c, ok := t.cols[name]
	if !ok {
		return 0, false
	}
	return c[i], true
}

// SameKeys reports whether keys is exactly this table's key sequence.
func (t *Table) SameKeys(keys []string) bool {
	return slices.Equal(t.keys, keys)
}

// Align returns the table reordered to keys. Both key sets must be identical;
// a missing or extra identifier is a SchemaError.
func (t *Table) Align(keys []string) (*Table, error) {
	if t.SameKeys(keys) {
		return t, nil
	}
	if len(keys) != len(t.keys) {
		return nil, model.NewSchemaError(t.name, "key space has %d units, expected %d", len(t.keys), len(keys))
	}
	out, err := New(t.name, keys)
	if err != nil {
		return nil, err
	}
	perm := make([]int, len(keys))
	for i, k := range keys {
		src, ok := t.index[k]
		if !ok {
			return nil, &model.SchemaError{Table: t.name, Unit: k, Reason: "identifier missing from table"}
		}
		perm[i] = src
	}
	for _, name := range t.names {
		src := t.cols[name]
		dst := make([]float64, len(keys))
		for i, p := range perm {
			dst[i] = src[p]
		}
		out.names = append(out.names, name)
		out.cols[name] = dst
	}
	return out, nil
}

// Select returns a table holding only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out, err := New(t.name, t.keys)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		c, err := t.RequireColumn(name)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(name, c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RowSum returns, per row, the sum of the named columns.
func (t *Table) RowSum(names ...string) ([]float64, error) {
	sum := make([]float64, len(t.keys))
	for _, name := range names {
		c, ok := t.cols[name]
		if !ok {
			return nil, &model.SchemaError{Table: t.name, Column: name, Reason: "missing column"}
		}
		for i, v := range c {
			sum[i] += v
		}
	}
	return sum, nil
}
