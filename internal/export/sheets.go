package export

import (
	"fmt"
	"strconv"

	"github.com/rollcall/attendance/internal/reconcile"
	"github.com/rollcall/attendance/internal/types"
)

// Worksheet is one titled grid of cells, header first.
type Worksheet struct {
	Title string
	Grid  [][]string
}

// SabbathHeader is the header row of a dated worksheet. It is the same row
// schema the importers read.
var SabbathHeader = []string{
	reconcile.ColType, reconcile.ColID, reconcile.ColFirstName, reconcile.ColLastName,
	reconcile.ColCategory, reconcile.ColStatus, reconcile.ColNotes, reconcile.ColIsActive,
}

var summaryHeader = []string{
	"Member ID", reconcile.ColFirstName, reconcile.ColLastName, reconcile.ColCategory,
	reconcile.ColStatus, reconcile.ColNotes, reconcile.ColDate, reconcile.ColIsActive,
}

// SabbathWorksheet lays out one date: a row per member (inactive included,
// "Not Recorded" when there is no record), a row per visitor that date, a
// blank row and a totals row.
func (s *Snapshot) SabbathWorksheet(date string) Worksheet {
	records := s.attendanceOn(date)
	visitors := s.visitorsOn(date)

	grid := [][]string{append([]string(nil), SabbathHeader...)}
	var stats types.AttendanceStats
	for _, m := range s.Members {
		status, notes := types.StatusNotRecorded, ""
		if r, ok := records[m.ID]; ok {
			status, notes = r.Status, r.Notes
			switch r.Status {
			case types.StatusPresent:
				stats.Present++
			case types.StatusAbsent:
				stats.Absent++
			default:
				stats.Other++
			}
		}
		grid = append(grid, []string{
			reconcile.TypeMember, strconv.FormatInt(m.ID, 10), m.FirstName, m.LastName,
			m.Category, StatusLabel(status), notes, yesNo(m.IsActive),
		})
	}
	for _, v := range visitors {
		first, last := v.Names()
		grid = append(grid, []string{
			reconcile.TypeVisitor, v.ID, first, last, "Visitor", "Present", v.Notes, "N/A",
		})
	}

	grid = append(grid, []string{}, totalsRow(len(s.Members), len(visitors), stats))
	return Worksheet{Title: reconcile.SheetPrefix + date, Grid: grid}
}

func totalsRow(members, visitors int, stats types.AttendanceStats) []string {
	return []string{
		reconcile.TypeTotals,
		"",
		fmt.Sprintf("Members: %d (%d Present, %d Absent, %d Other)", members, stats.Present, stats.Absent, stats.Other),
		fmt.Sprintf("Visitors: %d (%d Present)", visitors, visitors),
		fmt.Sprintf("Total People: %d", members+visitors),
		fmt.Sprintf("Overall Present: %d", stats.Present+visitors),
	}
}

// SummaryWorksheet lists every attendance record in the snapshot for date,
// or for all dates when date is empty. Records whose member is gone are
// skipped.
func (s *Snapshot) SummaryWorksheet(date string) Worksheet {
	title := "Summary All"
	if date != "" {
		title = "Summary " + date
	}
	members := s.memberByID()
	grid := [][]string{append([]string(nil), summaryHeader...)}
	for _, r := range s.Attendance {
		if date != "" && r.SabbathDate != date {
			continue
		}
		m, ok := members[r.MemberID]
		if !ok {
			continue
		}
		grid = append(grid, []string{
			strconv.FormatInt(m.ID, 10), m.FirstName, m.LastName, m.Category,
			StatusLabel(r.Status), r.Notes, r.SabbathDate, yesNo(m.IsActive),
		})
	}
	return Worksheet{Title: title, Grid: grid}
}

// Worksheets returns the dated worksheet for date, or one per attendance
// date when date is empty, followed by the matching summary worksheet.
func (s *Snapshot) Worksheets(date string) []Worksheet {
	dates := []string{date}
	if date == "" {
		dates = s.Dates()
	}
	sheets := make([]Worksheet, 0, len(dates)+1)
	for _, d := range dates {
		sheets = append(sheets, s.SabbathWorksheet(d))
	}
	return append(sheets, s.SummaryWorksheet(date))
}
