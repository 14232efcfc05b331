package storage

import (
	"sort"

	"github.com/rollcall/attendance/internal/types"
)

// The functions below give flat-store reads the same filtering and ordering
// as the mirror's queries.

func filterMembers(members []*types.Member, filter MemberFilter) []*types.Member {
	out := make([]*types.Member, 0, len(members))
	for _, m := range members {
		if m.IsActive || filter.IncludeInactive {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].SortKey(), out[j].SortKey()
		if ki != kj {
			return ki < kj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func filterAttendance(records []*types.AttendanceRecord, filter AttendanceFilter) []*types.AttendanceRecord {
	out := make([]*types.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if filter.Date != "" && r.SabbathDate != filter.Date {
			continue
		}
		if filter.MemberID != 0 && r.MemberID != filter.MemberID {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if filter.Date == "" && out[i].SabbathDate != out[j].SabbathDate {
			return out[i].SabbathDate > out[j].SabbathDate
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func filterVisitors(visitors []*types.Visitor, filter VisitorFilter) []*types.Visitor {
	out := make([]*types.Visitor, 0, len(visitors))
	for _, v := range visitors {
		if filter.Date != "" && v.SabbathDate != filter.Date {
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SabbathDate != out[j].SabbathDate {
			return out[i].SabbathDate > out[j].SabbathDate
		}
		ni, nj := out[i].DisplayName(), out[j].DisplayName()
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func indexMember(members []*types.Member, id int64) int {
	for i, m := range members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func indexAttendance(records []*types.AttendanceRecord, id int64) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func indexAttendanceKey(records []*types.AttendanceRecord, key types.AttendanceKey) int {
	for i, r := range records {
		if r.Key() == key {
			return i
		}
	}
	return -1
}

func indexVisitor(visitors []*types.Visitor, id string) int {
	for i, v := range visitors {
		if v.ID == id {
			return i
		}
	}
	return -1
}
