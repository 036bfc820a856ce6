// Package table holds an in-memory, string-typed view of a tabular input
// file together with readers and writers for delimited text and Excel
// workbooks. Column order and row order are preserved end to end so an
// output file lines up with the file it was derived from.
package table

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNoSuchColumn is returned when a column lookup fails.
var ErrNoSuchColumn = errors.New("no such column")

// Table is a header plus rows of cells. Rows shorter than the header read
// as empty cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of col, or -1.
func (t *Table) Index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Has reports whether every column exists.
func (t *Table) Has(cols ...string) bool {
	return len(t.Missing(cols...)) == 0
}

// Missing returns the subset of cols absent from the table, in order.
func (t *Table) Missing(cols ...string) []string {
	var out []string
	for _, c := range cols {
		if t.Index(c) < 0 {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the cell at (row, col) or "" when the column or cell is absent.
func (t *Table) Get(row int, col string) string {
	i := t.Index(col)
	if i < 0 || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// Set writes the cell at (row, col), growing the row if needed.
func (t *Table) Set(row int, col, val string) error {
	i := t.Index(col)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchColumn, col)
	}
	if row < 0 || row >= len(t.Rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	for len(t.Rows[row]) <= i {
		t.Rows[row] = append(t.Rows[row], "")
	}
	t.Rows[row][i] = val
	return nil
}

// Column returns a copy of all values of col.
func (t *Table) Column(col string) ([]string, error) {
	if t.Index(col) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchColumn, col)
	}
	out := make([]string, len(t.Rows))
	for r := range t.Rows {
		out[r] = t.Get(r, col)
	}
	return out, nil
}

// EnsureColumn appends col (with empty cells) unless it already exists.
func (t *Table) EnsureColumn(col string) {
	if t.Index(col) >= 0 {
		return
	}
	t.Columns = append(t.Columns, col)
	for r := range t.Rows {
		t.Rows[r] = append(t.pad(t.Rows[r], len(t.Columns)-1), "")
	}
}

// Append adds a row fitted to the header width: short rows are padded and
// cells past the last column are cut.
func (t *Table) Append(cells ...string) {
	if len(cells) > len(t.Columns) {
		cells = cells[:len(t.Columns)]
	}
	t.Rows = append(t.Rows, t.pad(append([]string(nil), cells...), len(t.Columns)))
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}

// Select returns a copy restricted to cols, in that order. Absent columns
// are emitted empty.
func (t *Table) Select(cols ...string) *Table {
	out := New(cols...)
	for r := range t.Rows {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = t.Get(r, c)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func (t *Table) pad(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

// DerivePath returns a sibling of path with suffix inserted before the
// extension. When ext is non-empty it replaces the original extension.
//
//	DerivePath("in/phones.csv", "_delivery", "") == "in/phones_delivery.csv"
func DerivePath(path, suffix, ext string) string {
	orig := filepath.Ext(path)
	stem := strings.TrimSuffix(path, orig)
	if ext == "" {
		ext = orig
	}
	return stem + suffix + ext
}
