package feature

import (
	"fmt"
	"time"
)

// Row is one feature row. Values is indexed by Column.
type Row struct {
	Time   time.Time
	Values [NumColumns]float64
}

// Get returns the value of column c.
func (r Row) Get(c Column) float64 {
	return r.Values[c]
}

// Table is an ordered sequence of rows sharing the fixed schema.
// Every value is finite.
type Table struct {
	Rows []Row
}

// NewTable validates rows once and wraps them.
func NewTable(rows []Row) (*Table, error) {
	for i, r := range rows {
		for c, v := range r.Values {
			if !finite(v) {
				return nil, fmt.Errorf("%w: row %d column %s = %v", ErrNonFinite, i, Column(c), v)
			}
		}
	}
	return &Table{Rows: rows}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns a copy of column c.
func (t *Table) Column(c Column) []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values[c]
	}
	return out
}

// Features returns row i restricted to cols.
func (t *Table) Features(i int, cols []Column) []float64 {
	out := make([]float64, len(cols))
	for j, c := range cols {
		out[j] = t.Rows[i].Values[c]
	}
	return out
}

// Slice returns a table sharing rows [from, to).
func (t *Table) Slice(from, to int) *Table {
	return &Table{Rows: t.Rows[from:to]}
}

// Clone deep-copies the table so it can be transformed independently.
func (t *Table) Clone() *Table {
	rows := make([]Row, len(t.Rows))
	copy(rows, t.Rows)
	return &Table{Rows: rows}
}
