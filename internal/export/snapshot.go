// Package export renders attendance for people: dated worksheets pushed to
// the remote spreadsheet and xlsx workbooks written to disk.
package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/rollcall/attendance/internal/storage"
	"github.com/rollcall/attendance/internal/types"
)

// Snapshot is everything an export reads, loaded once.
type Snapshot struct {
	Members    []*types.Member
	Attendance []*types.AttendanceRecord
	Visitors   []*types.Visitor
}

// Load reads members (inactive included) and the attendance and visitors for
// date, or for every date when date is empty.
func Load(ctx context.Context, coord *storage.Coordinator, date string) (*Snapshot, error) {
	members, err := coord.Members().GetAll(ctx, storage.MemberFilter{IncludeInactive: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	records, err := coord.Attendance().GetAll(ctx, storage.AttendanceFilter{Date: date})
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance: %w", err)
	}
	visitors, err := coord.Visitors().GetAll(ctx, storage.VisitorFilter{Date: date})
	if err != nil {
		return nil, fmt.Errorf("failed to load visitors: %w", err)
	}
	return &Snapshot{Members: members, Attendance: records, Visitors: visitors}, nil
}

// Dates returns the distinct attendance dates, oldest first.
func (s *Snapshot) Dates() []string {
	seen := make(map[string]bool)
	var dates []string
	for _, r := range s.Attendance {
		if !seen[r.SabbathDate] {
			seen[r.SabbathDate] = true
			dates = append(dates, r.SabbathDate)
		}
	}
	sort.Strings(dates)
	return dates
}

func (s *Snapshot) memberByID() map[int64]*types.Member {
	byID := make(map[int64]*types.Member, len(s.Members))
	for _, m := range s.Members {
		byID[m.ID] = m
	}
	return byID
}

func (s *Snapshot) attendanceOn(date string) map[int64]*types.AttendanceRecord {
	byMember := make(map[int64]*types.AttendanceRecord)
	for _, r := range s.Attendance {
		if r.SabbathDate == date {
			byMember[r.MemberID] = r
		}
	}
	return byMember
}

func (s *Snapshot) visitorsOn(date string) []*types.Visitor {
	var out []*types.Visitor
	for _, v := range s.Visitors {
		if v.SabbathDate == date {
			out = append(out, v)
		}
	}
	return out
}

// StatusLabel renders a status the way people type it in a sheet.
func StatusLabel(s types.Status) string {
	switch s {
	case types.StatusPresent:
		return "Present"
	case types.StatusAbsent:
		return "Absent"
	case types.StatusOther:
		return "Other"
	case types.StatusNotRecorded, "":
		return "Not Recorded"
	}
	return string(s)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
