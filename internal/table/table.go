// Package table holds the tabular data model shared by the validation
// oracle, the sandbox and the reference loader. A Table has named, ordered
// columns; column order is presentation metadata only and comparisons built
// on top of this package treat column sets, not column sequences.
package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Table is an in-memory tabular dataset. Rows hold raw string cells; numeric
// interpretation is applied lazily via Normalize.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New builds a table from a column list and row data.
func New(columns []string, rows [][]string) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// FromRecords converts raw records into a table, treating the first record as
// the header row. An empty record set is rejected.
func FromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row in result")
	}
	header := records[0]
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header row in result")
	}
	rows := make([][]string, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i+1, len(rec), len(header))
		}
		rows = append(rows, rec)
	}
	return &Table{Columns: header, Rows: rows}, nil
}

// LoadCSV reads a reference table from a CSV file. The first record is the
// header; ragged rows are an error (enforced by encoding/csv).
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read reference %s: %w", path, err)
	}
	return FromRecords(records)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the trimmed cell at (row, column index).
func (t *Table) Cell(row, col int) string {
	return strings.TrimSpace(t.Rows[row][col])
}

// Normalize parses a cell as a number, tolerating thousands separators and
// surrounding whitespace. "1,234.50" and "1234.5" normalize to the same value.
func Normalize(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NumericColumns reports which columns are numeric: every non-empty cell in
// the column must normalize to a number. Columns with no non-empty cells are
// treated as text.
func (t *Table) NumericColumns() map[string]bool {
	numeric := make(map[string]bool, len(t.Columns))
	for i, name := range t.Columns {
		seen := false
		ok := true
		for r := range t.Rows {
			cell := t.Cell(r, i)
			if cell == "" {
				continue
			}
			seen = true
			if _, isNum := Normalize(cell); !isNum {
				ok = false
				break
			}
		}
		numeric[name] = seen && ok
	}
	return numeric
}
