// Package validate implements the deterministic comparison between a table
// produced by a candidate parser and the reference table. Comparison is
// column-order-insensitive and row-order-sensitive: the produced table may
// order its columns freely, but rows must line up positionally.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"parseforge/internal/table"
)

// DefaultMaxMismatches bounds how many cell mismatches are carried in a
// report. The diagnostic is fed back into generation prompts and must stay
// compact, so the full table diff is never materialized.
const DefaultMaxMismatches = 5

// SchemaError reports a column-set mismatch.
type SchemaError struct {
	Missing []string // in reference, absent from produced
	Extra   []string // in produced, absent from reference
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema mismatch: missing columns %v, unexpected columns %v", e.Missing, e.Extra)
}

// RowCountError reports a row-count mismatch.
type RowCountError struct {
	Expected int
	Actual   int
}

func (e *RowCountError) Error() string {
	return fmt.Sprintf("row count mismatch: expected %d rows, got %d", e.Expected, e.Actual)
}

// ValueMismatch records one cell-level disagreement. Row is zero-based over
// data rows (the header is not a row).
type ValueMismatch struct {
	Row      int
	Column   string
	Expected string
	Actual   string
}

func (m ValueMismatch) String() string {
	return fmt.Sprintf("row %d, column %q: expected %q, got %q", m.Row, m.Column, m.Expected, m.Actual)
}

// MismatchError aggregates the first bounded cell mismatches. Total counts
// every mismatch found, including those beyond the bound.
type MismatchError struct {
	Mismatches []ValueMismatch
	Total      int
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d value mismatch(es)", e.Total)
	for _, m := range e.Mismatches {
		b.WriteString("; ")
		b.WriteString(m.String())
	}
	if e.Total > len(e.Mismatches) {
		fmt.Fprintf(&b, "; ... and %d more", e.Total-len(e.Mismatches))
	}
	return b.String()
}

// Report is the oracle's verdict on one produced table.
type Report struct {
	Pass    bool
	failure error
}

// Err returns the typed failure behind a failing report, nil when it passed.
func (r *Report) Err() error {
	if r.Pass {
		return nil
	}
	return r.failure
}

// Compare runs the oracle with the default mismatch bound.
func Compare(produced, reference *table.Table) *Report {
	return CompareN(produced, reference, DefaultMaxMismatches)
}

// CompareN validates a produced table against the reference. Checks run in
// order: column sets, row counts, then cell values. Numeric columns (derived
// from the reference) compare by normalized numeric value; text columns by
// exact value after trimming surrounding whitespace.
func CompareN(produced, reference *table.Table, maxMismatches int) *Report {
	if maxMismatches <= 0 {
		maxMismatches = DefaultMaxMismatches
	}

	if err := compareColumns(produced, reference); err != nil {
		return &Report{failure: err}
	}

	if len(produced.Rows) != len(reference.Rows) {
		return &Report{failure: &RowCountError{
			Expected: len(reference.Rows),
			Actual:   len(produced.Rows),
		}}
	}

	numeric := reference.NumericColumns()

	var mismatches []ValueMismatch
	total := 0
	for r := range reference.Rows {
		for refCol, name := range reference.Columns {
			prodCol := produced.ColumnIndex(name)
			expected := reference.Cell(r, refCol)
			actual := produced.Cell(r, prodCol)

			if cellsEqual(expected, actual, numeric[name]) {
				continue
			}
			total++
			if len(mismatches) < maxMismatches {
				mismatches = append(mismatches, ValueMismatch{
					Row:      r,
					Column:   name,
					Expected: expected,
					Actual:   actual,
				})
			}
		}
	}

	if total > 0 {
		return &Report{failure: &MismatchError{Mismatches: mismatches, Total: total}}
	}
	return &Report{Pass: true}
}

func cellsEqual(expected, actual string, numeric bool) bool {
	if numeric {
		ev, eok := table.Normalize(expected)
		av, aok := table.Normalize(actual)
		if eok && aok {
			return ev == av
		}
		// One side is not a number (e.g. empty or garbage): fall back to
		// exact trimmed comparison.
	}
	return expected == actual
}

func compareColumns(produced, reference *table.Table) error {
	prodSet := make(map[string]bool, len(produced.Columns))
	for _, c := range produced.Columns {
		prodSet[c] = true
	}
	refSet := make(map[string]bool, len(reference.Columns))
	for _, c := range reference.Columns {
		refSet[c] = true
	}

	var missing, extra []string
	for c := range refSet {
		if !prodSet[c] {
			missing = append(missing, c)
		}
	}
	for c := range prodSet {
		if !refSet[c] {
			extra = append(extra, c)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return &SchemaError{Missing: missing, Extra: extra}
}
