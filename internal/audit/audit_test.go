package audit

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/mirror"
	"github.com/rollcall/attendance/internal/types"
)

func rec(id, member int64, date string, status types.Status, notes string) *types.AttendanceRecord {
	return &types.AttendanceRecord{ID: id, MemberID: member, SabbathDate: date, Status: status, Notes: notes}
}

func TestCompare_Classifies(t *testing.T) {
	flat := []*types.AttendanceRecord{
		rec(1, 1, "2025-01-04", types.StatusPresent, ""),
		rec(2, 2, "2025-01-04", types.StatusAbsent, "sick"),
		rec(3, 3, "2025-01-04", types.StatusPresent, ""),
	}
	mirrorRecs := []*types.AttendanceRecord{
		rec(1, 1, "2025-01-04", types.StatusPresent, ""),
		rec(2, 2, "2025-01-04", types.StatusAbsent, "travel"),
		rec(9, 4, "2024-12-28", types.StatusOther, ""),
	}

	report := Compare(flat, mirrorRecs)
	require.False(t, report.Consistent)
	require.Equal(t, 3, report.FlatCount)
	require.Equal(t, 3, report.MirrorCount)
	require.Len(t, report.Discrepancies, 3)

	// Ordered by date, then member.
	require.Equal(t, MissingInFlat, report.Discrepancies[0].Kind)
	require.Equal(t, int64(4), report.Discrepancies[0].MemberID)
	require.Nil(t, report.Discrepancies[0].Flat)

	require.Equal(t, Mismatch, report.Discrepancies[1].Kind)
	require.Equal(t, []string{"notes"}, report.Discrepancies[1].Fields)

	require.Equal(t, MissingInMirror, report.Discrepancies[2].Kind)
	require.Equal(t, int64(3), report.Discrepancies[2].MemberID)

	counts := report.Counts()
	require.Equal(t, 1, counts[MissingInMirror])
	require.Equal(t, 1, counts[MissingInFlat])
	require.Equal(t, 1, counts[Mismatch])
}

func TestCompare_ReportsFlatDuplicates(t *testing.T) {
	flat := []*types.AttendanceRecord{
		rec(1, 1, "2025-01-04", types.StatusPresent, ""),
		rec(7, 1, "2025-01-04", types.StatusAbsent, "hand edit"),
	}
	mirrorRecs := []*types.AttendanceRecord{
		rec(1, 1, "2025-01-04", types.StatusPresent, ""),
	}

	report := Compare(flat, mirrorRecs)
	require.False(t, report.Consistent)
	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	require.Equal(t, DuplicateInFlat, d.Kind)
	require.Equal(t, int64(7), d.Flat.ID)
	require.Nil(t, d.Mirror)
	require.Equal(t, 1, report.Counts()[DuplicateInFlat])

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, report, NewStyles(&buf, termenv.Ascii)))
	require.Contains(t, buf.String(), "duplicate_in_flat")
	require.Contains(t, buf.String(), "flat id=7")
}

func TestCompare_IgnoresIDsAndTimestamps(t *testing.T) {
	report := Compare(
		[]*types.AttendanceRecord{rec(1, 1, "2025-01-04", types.StatusPresent, "")},
		[]*types.AttendanceRecord{rec(77, 1, "2025-01-04", types.StatusPresent, "")},
	)
	require.True(t, report.Consistent)
	require.Empty(t, report.Discrepancies)
	require.NotNil(t, report.Discrepancies)
}

func TestRun_AgainstStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	flat, err := flatstore.Open(dir, flatstore.DefaultOptions())
	require.NoError(t, err)
	db, err := mirror.Open(filepath.Join(dir, "mirror.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.InitSchema())

	member, err := db.CreateMember(ctx, &types.Member{FirstName: "Ada", LastName: "Lovelace", Category: "adult", RegistrationDate: "2024-01-01", IsActive: true})
	require.NoError(t, err)
	_, err = db.CreateAttendance(ctx, rec(0, member.ID, "2025-01-04", types.StatusPresent, ""))
	require.NoError(t, err)
	require.NoError(t, flat.WriteAttendance(ctx, []*types.AttendanceRecord{
		rec(1, member.ID, "2025-01-04", types.StatusAbsent, ""),
	}))

	before, err := db.Counts(ctx)
	require.NoError(t, err)

	report, err := Run(ctx, flat, db)
	require.NoError(t, err)
	require.False(t, report.Consistent)
	require.Len(t, report.Discrepancies, 1)
	require.Equal(t, Mismatch, report.Discrepancies[0].Kind)
	require.Equal(t, []string{"status"}, report.Discrepancies[0].Fields)

	after, err := db.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
	stored, err := flat.Attendance(ctx)
	require.NoError(t, err)
	require.Equal(t, types.StatusAbsent, stored[0].Status)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	styles := NewStyles(&buf, termenv.Ascii)

	require.NoError(t, WriteText(&buf, Report{Consistent: true, Discrepancies: []Discrepancy{}, FlatCount: 2, MirrorCount: 2}, styles))
	require.Contains(t, buf.String(), "stores are consistent")

	buf.Reset()
	report := Compare(
		[]*types.AttendanceRecord{rec(1, 5, "2025-01-04", types.StatusPresent, "")},
		nil,
	)
	require.NoError(t, WriteText(&buf, report, styles))
	out := buf.String()
	require.Contains(t, out, "1 discrepancies")
	require.Contains(t, out, "member 5 on 2025-01-04")
	require.False(t, strings.Contains(out, "\x1b["), "ascii profile must not emit escape codes")
}

func TestWriteYAML(t *testing.T) {
	report := Compare(
		[]*types.AttendanceRecord{rec(1, 5, "2025-01-04", types.StatusPresent, "")},
		nil,
	)
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, report))

	var decoded struct {
		Consistent    bool `yaml:"consistent"`
		FlatCount     int  `yaml:"flatCount"`
		Discrepancies []struct {
			Kind     string `yaml:"kind"`
			MemberID int64  `yaml:"memberId"`
		} `yaml:"discrepancies"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.False(t, decoded.Consistent)
	require.Equal(t, 1, decoded.FlatCount)
	require.Equal(t, "missing_in_mirror", decoded.Discrepancies[0].Kind)
	require.Equal(t, int64(5), decoded.Discrepancies[0].MemberID)
}
