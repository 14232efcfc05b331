package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rollcall/attendance/internal/types"
)

// Format selects the attendance sheet layout of a workbook.
type Format string

const (
	FormatDetailed Format = "detailed"
	FormatSummary  Format = "summary"
)

// Sheet names written to a workbook.
const (
	SheetDetails    = "Attendance Details"
	SheetSummary    = "Attendance Summary"
	SheetMembers    = "Members"
	SheetStatistics = "Statistics"
)

// WorkbookOptions configures Workbook.
type WorkbookOptions struct {
	// Date the snapshot was loaded for ("" = all dates)
	Date string
	// Format of the attendance sheet (default detailed)
	Format Format
	// IncludeMembers adds the roster sheet
	IncludeMembers bool
	// Now stamps the statistics sheet and the all-dates file name
	Now time.Time
}

// ParseFormat accepts "detailed" or "summary"; empty means detailed.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatDetailed:
		return FormatDetailed, nil
	case FormatSummary:
		return FormatSummary, nil
	}
	return "", fmt.Errorf("unknown export format %q (want detailed or summary)", raw)
}

// FileName is attendance_<date>.xlsx for one date and
// attendance_all_<today>.xlsx otherwise.
func FileName(date string, now time.Time) string {
	if date != "" {
		return "attendance_" + date + ".xlsx"
	}
	return "attendance_all_" + now.Format("2006-01-02") + ".xlsx"
}

// Workbook builds the attendance sheet, the optional roster and the
// statistics sheet.
func (s *Snapshot) Workbook(opts WorkbookOptions) (*excelize.File, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	f := excelize.NewFile()

	var first [][]any
	name := SheetDetails
	if opts.Format == FormatSummary {
		name = SheetSummary
		first = s.summaryRows()
	} else {
		first = s.detailRows()
	}
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, err
	}
	if err := writeSheet(f, name, first, detailWidths); err != nil {
		return nil, err
	}

	if opts.IncludeMembers {
		if err := addSheet(f, SheetMembers, s.memberRows(), memberWidths); err != nil {
			return nil, err
		}
	}
	if err := addSheet(f, SheetStatistics, s.statisticsRows(opts), statisticsWidths); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// WriteWorkbook saves the workbook under dir and returns its path.
func (s *Snapshot) WriteWorkbook(dir string, opts WorkbookOptions) (string, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	f, err := s.Workbook(opts)
	if err != nil {
		return "", fmt.Errorf("failed to build workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(opts.Date, opts.Now))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, nil
}

var (
	detailWidths     = []float64{8, 10, 15, 15, 25, 12, 12, 12, 30, 20, 20}
	memberWidths     = []float64{8, 15, 15, 12, 15, 10, 20, 20}
	statisticsWidths = []float64{20, 15, 12}
)

func addSheet(f *excelize.File, name string, rows [][]any, widths []float64) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	return writeSheet(f, name, rows, widths)
}

func writeSheet(f *excelize.File, name string, rows [][]any, widths []float64) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(name, cell, v); err != nil {
				return err
			}
		}
	}
	for c, w := range widths {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(name, col, col, w); err != nil {
			return err
		}
	}
	return nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (s *Snapshot) detailRows() [][]any {
	members := s.memberByID()
	rows := [][]any{{
		"ID", "Member ID", "First Name", "Last Name", "Full Name", "Category",
		"Sabbath Date", "Status", "Notes", "Created At", "Updated At",
	}}
	for _, r := range s.Attendance {
		var first, last, category string
		if m, ok := members[r.MemberID]; ok {
			first, last, category = m.FirstName, m.LastName, m.Category
		}
		rows = append(rows, []any{
			r.ID, r.MemberID, first, last, fullName(first, last), category,
			r.SabbathDate, StatusLabel(r.Status), r.Notes, stamp(r.CreatedAt), stamp(r.UpdatedAt),
		})
	}
	return rows
}

func (s *Snapshot) summaryRows() [][]any {
	members := s.memberByID()
	rows := [][]any{{
		"Member ID", "First Name", "Last Name", "Full Name", "Category",
		"Status", "Notes", "Date", "Is Active",
	}}
	for _, r := range s.Attendance {
		m, ok := members[r.MemberID]
		if !ok {
			continue
		}
		rows = append(rows, []any{
			m.ID, m.FirstName, m.LastName, fullName(m.FirstName, m.LastName), m.Category,
			StatusLabel(r.Status), r.Notes, r.SabbathDate, yesNo(m.IsActive),
		})
	}
	return rows
}

func (s *Snapshot) memberRows() [][]any {
	rows := [][]any{{
		"ID", "First Name", "Last Name", "Category", "Registration Date",
		"Is Active", "Created At", "Updated At",
	}}
	for _, m := range s.Members {
		rows = append(rows, []any{
			m.ID, m.FirstName, m.LastName, m.Category, m.RegistrationDate,
			yesNo(m.IsActive), stamp(m.CreatedAt), stamp(m.UpdatedAt),
		})
	}
	return rows
}

func (s *Snapshot) statisticsRows(opts WorkbookOptions) [][]any {
	stats := types.ComputeStats(s.Attendance, opts.Date)
	pct := func(n int) string { return strconv.Itoa(stats.Percent(n)) + "%" }
	dateRange := "All dates"
	if opts.Date != "" {
		dateRange = opts.Date
	}
	return [][]any{
		{"Metric", "Count", "Percentage"},
		{"Total Records", stats.Total, "100%"},
		{"Present", stats.Present, pct(stats.Present)},
		{"Absent", stats.Absent, pct(stats.Absent)},
		{"Other", stats.Other, pct(stats.Other)},
		{"Date Range", dateRange, ""},
		{"Generated At", opts.Now.Format(time.RFC3339), ""},
	}
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
