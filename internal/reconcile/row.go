package reconcile

import (
	"strings"
)

// Column headers of the external row schema.
const (
	ColType      = "Type"
	ColID        = "ID"
	ColFirstName = "First Name"
	ColLastName  = "Last Name"
	ColCategory  = "Category"
	ColStatus    = "Status"
	ColNotes     = "Notes"
	ColIsActive  = "Is Active"
	ColDate      = "Sabbath Date"
)

// Row types.
const (
	TypeMember  = "Member"
	TypeVisitor = "Visitor"
	TypeTotals  = "TOTALS"
)

// Row is one external spreadsheet row keyed by column header.
type Row map[string]string

// Get returns the trimmed value of column col.
func (r Row) Get(col string) string {
	return strings.TrimSpace(r[col])
}

// Type returns the row type.
func (r Row) Type() string {
	return r.Get(ColType)
}

// Label names the row in error details.
func (r Row) Label() string {
	return strings.TrimSpace(r.Type() + " " + r.Get(ColFirstName) + " " + r.Get(ColLastName))
}

// identifiable reports whether the row can be reconciled at all. Summary
// rows and rows missing identifying fields are skipped silently.
func (r Row) identifiable() bool {
	if strings.EqualFold(r.Type(), TypeTotals) {
		return false
	}
	for _, col := range []string{ColType, ColID, ColFirstName, ColLastName} {
		if r.Get(col) == "" {
			return false
		}
	}
	return true
}

// RowsFromGrid maps a cell grid whose first row is the header onto Rows.
// Short rows leave trailing columns empty and blank rows are dropped.
func RowsFromGrid(grid [][]string) []Row {
	if len(grid) == 0 {
		return nil
	}
	header := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := make(Row, len(header))
		blank := true
		for i, col := range header {
			if col == "" {
				continue
			}
			var v string
			if i < len(cells) {
				v = cells[i]
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			row[col] = v
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows
}
