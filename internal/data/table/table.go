// Package table provides an in-memory delimited table for scaling datasets.
package table

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing column")

// MissingColumnError names the absent column.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", e.Column)
}

// Unwrap lets errors.Is match ErrMissingColumn.
func (e *MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}

// Table is an immutable header + string records table.
// Each row keeps the index it had in the source file, so exports of a
// filtered table still line up with the source rows.
type Table struct {
	header  []string
	columns map[string]int
	rows    [][]string
	index   []int
}

// New creates a table. Short records are padded with empty cells.
func New(header []string, rows [][]string) *Table {
	t := &Table{
		header:  append([]string(nil), header...),
		columns: make(map[string]int, len(header)),
		rows:    make([][]string, len(rows)),
		index:   make([]int, len(rows)),
	}
	for i, name := range t.header {
		if _, dup := t.columns[name]; !dup {
			t.columns[name] = i
		}
	}
	for i, rec := range rows {
		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			rec = padded
		}
		t.rows[i] = rec
		t.index[i] = i
	}
	return t
}

// Header returns the column names in file order.
func (t *Table) Header() []string {
	return t.header
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the table has the named column.
func (t *Table) Has(col string) bool {
	_, ok := t.columns[col]
	return ok
}

// Index returns the source-file index of row i.
func (t *Table) Index(i int) int {
	return t.index[i]
}

// Row returns row i. The slice must not be modified.
func (t *Table) Row(i int) []string {
	return t.rows[i]
}

// Value returns the cell of row i in column col, or "" if absent.
func (t *Table) Value(i int, col string) string {
	c, ok := t.columns[col]
	if !ok {
		return ""
	}
	return t.rows[i][c]
}

// Column returns all values of a column.
func (t *Table) Column(col string) ([]string, error) {
	c, ok := t.columns[col]
	if !ok {
		return nil, &MissingColumnError{Column: col}
	}
	out := make([]string, len(t.rows))
	for i, rec := range t.rows {
		out[i] = rec[c]
	}
	return out, nil
}

// Floats parses a column as float64. Unparsable cells become NaN.
func (t *Table) Floats(col string) ([]float64, error) {
	c, ok := t.columns[col]
	if !ok {
		return nil, &MissingColumnError{Column: col}
	}
	out := make([]float64, len(t.rows))
	for i, rec := range t.rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
		if err != nil {
			v = math.NaN()
		}
		out[i] = v
	}
	return out, nil
}

// Unique returns the distinct values of a column in first-seen order.
func (t *Table) Unique(col string) ([]string, error) {
	values, err := t.Column(col)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, 16)
	out := make([]string, 0, 16)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := &Table{
		header:  t.header,
		columns: t.columns,
		rows:    make([][]string, 0, len(t.rows)),
		index:   make([]int, 0, len(t.rows)),
	}
	for i, rec := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, rec)
			out.index = append(out.index, t.index[i])
		}
	}
	return out
}

// WithColumn returns a copy with col set to values, appending the column
// if it does not exist. len(values) must equal Len().
func (t *Table) WithColumn(col string, values []string) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("column %q: got %d values for %d rows", col, len(values), len(t.rows))
	}

	c, exists := t.columns[col]
	header := t.header
	columns := t.columns
	if !exists {
		header = append(append([]string(nil), t.header...), col)
		columns = make(map[string]int, len(header))
		for k, v := range t.columns {
			columns[k] = v
		}
		c = len(header) - 1
		columns[col] = c
	}

	rows := make([][]string, len(t.rows))
	for i, rec := range t.rows {
		next := make([]string, len(header))
		copy(next, rec)
		next[c] = values[i]
		rows[i] = next
	}
	return &Table{
		header:  header,
		columns: columns,
		rows:    rows,
		index:   append([]int(nil), t.index...),
	}, nil
}
