// Package tabular converts delimited text streams into in-memory records.
//
// A stream is parsed once into a Table, passed through a short shaping
// pipeline (empty-row dropping, identifier coercion, column projection,
// value normalization), and materialized as either ordered rows or maps
// keyed by column name. Nothing persists beyond the call and the input
// stream is only read, never closed.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Value is a single cell after transformation. It holds one of:
// string, int64 (coerced identifier columns), bool (false only), or nil
// for a missing cell.
type Value any

// Options control how a stream is read and shaped.
type Options struct {
	// FilterColumns, when non-nil, projects the table down to exactly
	// these columns in the given order. Referencing a column that is not
	// present after header normalization is an error.
	FilterColumns []string

	// StripAndFalsify trims surrounding whitespace from string cells and
	// converts any cell equal to "false" (case-insensitive, after the
	// trim) to the boolean false. Non-string cells pass through.
	StripAndFalsify bool

	// LowerCaseColumns lower-cases both the parsed header names and the
	// FilterColumns entries before matching.
	LowerCaseColumns bool
}

// Table is a parsed dataset: normalized column names plus data rows in
// original order.
type Table struct {
	// Columns holds the header names after trimming and optional
	// lower-casing. Duplicate names after normalization are kept as-is;
	// map materialization resolves them last-wins.
	Columns []string

	rows [][]Value
}

// Read parses the stream as CSV and applies the shaping pipeline.
//
// The first row is the header; leading whitespace after a delimiter is
// ignored. Rows where every cell is missing are dropped, both before and
// after column projection. Malformed CSV (ragged rows, unreadable bytes)
// and unknown filter columns propagate as errors; identifier coercion
// failures never do.
func Read(stream io.Reader, opts Options) (*Table, error) {
	records, err := csv.NewReader(stream).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyStream
	}

	columns := make([]string, len(records[0]))
	for i, h := range records[0] {
		name := strings.TrimSpace(h)
		if opts.LowerCaseColumns {
			name = strings.ToLower(name)
		}
		columns[i] = name
	}

	rows := make([][]Value, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]Value, len(rec))
		empty := true
		for i, cell := range rec {
			// encoding/csv has no skip-initial-space knob, so the
			// space after a delimiter is stripped here.
			cell = strings.TrimLeft(cell, " ")
			if cell == "" {
				continue
			}
			row[i] = cell
			empty = false
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}

	t := &Table{Columns: columns, rows: rows}
	t.coerceIdentifierColumns()

	if opts.FilterColumns != nil {
		filter := opts.FilterColumns
		if opts.LowerCaseColumns {
			filter = make([]string, len(opts.FilterColumns))
			for i, name := range opts.FilterColumns {
				filter[i] = strings.ToLower(name)
			}
		}
		if err := t.project(filter); err != nil {
			return nil, err
		}
		t.dropEmptyRows()
	}

	if opts.StripAndFalsify {
		t.stripAndFalsify()
	}

	return t, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Lists returns every data row as an ordered sequence matching the
// Columns order.
func (t *Table) Lists() [][]Value {
	out := make([][]Value, len(t.rows))
	for i, row := range t.rows {
		out[i] = append([]Value(nil), row...)
	}
	return out
}

// Maps returns every data row keyed by normalized column name. When two
// columns normalize to the same name, the right-most value wins.
func (t *Table) Maps() []map[string]Value {
	out := make([]map[string]Value, len(t.rows))
	for i, row := range t.rows {
		m := make(map[string]Value, len(t.Columns))
		for j, name := range t.Columns {
			if j < len(row) {
				m[name] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// coerceIdentifierColumns converts columns whose name ends in "_id" to
// int64. The conversion is all-or-nothing per column: a single missing or
// non-integer cell leaves the entire column unchanged. Failures are
// swallowed; this is best-effort and never fatal.
func (t *Table) coerceIdentifierColumns() {
	for col, name := range t.Columns {
		if !strings.HasSuffix(name, "_id") {
			continue
		}

		coerced := make([]Value, len(t.rows))
		ok := true
		for i, row := range t.rows {
			s, isString := row[col].(string)
			if !isString {
				ok = false
				break
			}
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				ok = false
				break
			}
			coerced[i] = n
		}
		if !ok {
			continue
		}
		for i := range t.rows {
			t.rows[i][col] = coerced[i]
		}
	}
}

// project narrows the table to the named columns, in the given order.
// Duplicate normalized header names resolve to the right-most occurrence.
func (t *Table) project(columns []string) error {
	index := make(map[string]int, len(t.Columns))
	for i, name := range t.Columns {
		index[name] = i
	}

	positions := make([]int, len(columns))
	for i, name := range columns {
		pos, ok := index[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		positions[i] = pos
	}

	rows := make([][]Value, len(t.rows))
	for r, row := range t.rows {
		projected := make([]Value, len(positions))
		for i, pos := range positions {
			if pos < len(row) {
				projected[i] = row[pos]
			}
		}
		rows[r] = projected
	}

	t.Columns = append([]string(nil), columns...)
	t.rows = rows
	return nil
}

// dropEmptyRows removes rows where every remaining cell is missing.
func (t *Table) dropEmptyRows() {
	kept := t.rows[:0]
	for _, row := range t.rows {
		empty := true
		for _, v := range row {
			if v != nil {
				empty = false
				break
			}
		}
		if !empty {
			kept = append(kept, row)
		}
	}
	t.rows = kept
}

// stripAndFalsify normalizes string cells in place. Headers are never
// touched; the rule applies to data cells only.
func (t *Table) stripAndFalsify() {
	for _, row := range t.rows {
		for i, v := range row {
			s, isString := v.(string)
			if !isString {
				continue
			}
			s = strings.TrimSpace(s)
			if strings.EqualFold(s, "false") {
				row[i] = false
			} else {
				row[i] = s
			}
		}
	}
}
