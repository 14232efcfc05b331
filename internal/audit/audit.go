// Package audit compares the canonical flat store with the relational
// mirror and reports every attendance record on which they disagree.
// It never writes to either store.
package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/mirror"
	"github.com/rollcall/attendance/internal/types"
)

// Kind classifies a discrepancy.
type Kind string

const (
	MissingInMirror Kind = "missing_in_mirror"
	MissingInFlat   Kind = "missing_in_flat"
	Mismatch        Kind = "mismatch"

	// DuplicateInFlat marks a second canonical record for a key that
	// already has one. Only the first is compared with the mirror.
	DuplicateInFlat Kind = "duplicate_in_flat"
)

// Discrepancy is one attendance key on which the stores disagree. Flat or
// Mirror is nil when the record is absent from that store.
type Discrepancy struct {
	Kind        Kind                    `json:"kind" yaml:"kind"`
	MemberID    int64                   `json:"memberId" yaml:"memberId"`
	SabbathDate string                  `json:"sabbathDate" yaml:"sabbathDate"`
	Fields      []string                `json:"fields,omitempty" yaml:"fields,omitempty"`
	Flat        *types.AttendanceRecord `json:"flat,omitempty" yaml:"flat,omitempty"`
	Mirror      *types.AttendanceRecord `json:"mirror,omitempty" yaml:"mirror,omitempty"`
}

// Report is the result of one audit.
type Report struct {
	Consistent    bool          `json:"consistent" yaml:"consistent"`
	Discrepancies []Discrepancy `json:"discrepancies" yaml:"discrepancies"`
	FlatCount     int           `json:"flatCount" yaml:"flatCount"`
	MirrorCount   int           `json:"mirrorCount" yaml:"mirrorCount"`
}

// Counts tallies discrepancies by kind.
func (r Report) Counts() map[Kind]int {
	counts := make(map[Kind]int, 4)
	for _, d := range r.Discrepancies {
		counts[d.Kind]++
	}
	return counts
}

// Run loads both attendance collections and compares them by
// (memberId, sabbathDate).
func Run(ctx context.Context, flat *flatstore.Store, db *mirror.DB) (Report, error) {
	flatRecs, err := flat.Attendance(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load flat attendance: %w", err)
	}
	mirrorRecs, err := db.ListAttendance(ctx, mirror.AttendanceFilter{})
	if err != nil {
		return Report{}, fmt.Errorf("failed to load mirror attendance: %w", err)
	}
	return Compare(flatRecs, mirrorRecs), nil
}

// Compare classifies every key present in either collection. Discrepancies
// are ordered by date, then member.
func Compare(flatRecs, mirrorRecs []*types.AttendanceRecord) Report {
	report := Report{
		Discrepancies: []Discrepancy{},
		FlatCount:     len(flatRecs),
		MirrorCount:   len(mirrorRecs),
	}

	inMirror := make(map[types.AttendanceKey]*types.AttendanceRecord, len(mirrorRecs))
	for _, rec := range mirrorRecs {
		inMirror[rec.Key()] = rec
	}
	inFlat := make(map[types.AttendanceKey]bool, len(flatRecs))

	for _, f := range flatRecs {
		key := f.Key()
		if inFlat[key] {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Kind: DuplicateInFlat, MemberID: key.MemberID, SabbathDate: key.SabbathDate, Flat: f,
			})
			continue
		}
		inFlat[key] = true
		m, ok := inMirror[key]
		if !ok {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Kind: MissingInMirror, MemberID: key.MemberID, SabbathDate: key.SabbathDate, Flat: f,
			})
			continue
		}
		if fields := differingFields(f, m); len(fields) > 0 {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Kind: Mismatch, MemberID: key.MemberID, SabbathDate: key.SabbathDate,
				Fields: fields, Flat: f, Mirror: m,
			})
		}
	}
	for _, m := range mirrorRecs {
		key := m.Key()
		if inFlat[key] {
			continue
		}
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind: MissingInFlat, MemberID: key.MemberID, SabbathDate: key.SabbathDate, Mirror: m,
		})
	}

	sort.SliceStable(report.Discrepancies, func(i, j int) bool {
		a, b := report.Discrepancies[i], report.Discrepancies[j]
		if a.SabbathDate != b.SabbathDate {
			return a.SabbathDate < b.SabbathDate
		}
		return a.MemberID < b.MemberID
	})
	report.Consistent = len(report.Discrepancies) == 0
	return report
}

func differingFields(f, m *types.AttendanceRecord) []string {
	var fields []string
	if f.Status != m.Status {
		fields = append(fields, "status")
	}
	if f.Notes != m.Notes {
		fields = append(fields, "notes")
	}
	return fields
}
