package reconcile

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/storage"
	"github.com/rollcall/attendance/internal/types"
)

const testDate = "2024-08-16"

func newEngine(t *testing.T, withMirror bool) (*Engine, *storage.Coordinator) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()

	opts := flatstore.DefaultOptions()
	opts.CacheTTL = 0
	flat, err := flatstore.Open(dir, opts)
	require.NoError(t, err)

	capability := storage.Unavailable(nil)
	if withMirror {
		capability = storage.Negotiate(context.Background(), filepath.Join(dir, "mirror.db"), logger)
	}
	coord := storage.New(flat, capability, logger)
	t.Cleanup(func() { _ = coord.Close() })

	return New(FromCoordinator(coord), logger), coord
}

// seedMembers creates members with ids 1..n.
func seedMembers(t *testing.T, coord *storage.Coordinator, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := coord.Members().Create(context.Background(), &types.Member{
			FirstName: "First", LastName: "Last", Category: "adult",
			RegistrationDate: "2024-01-01", IsActive: true,
		})
		require.NoError(t, err)
	}
}

func memberRow(id, status, notes string) Row {
	return Row{ColType: TypeMember, ColID: id, ColFirstName: "First", ColLastName: "Last", ColStatus: status, ColNotes: notes}
}

func TestReconcile_CreateThenIdempotent(t *testing.T) {
	for _, withMirror := range []bool{false, true} {
		t.Run(map[bool]string{false: "flat", true: "mirror"}[withMirror], func(t *testing.T) {
			ctx := context.Background()
			engine, coord := newEngine(t, withMirror)
			seedMembers(t, coord, 7)

			rows := []Row{memberRow("7", "present", "")}
			result, err := engine.Reconcile(ctx, testDate, rows)
			require.NoError(t, err)
			require.Equal(t, 1, result.Created)
			require.Zero(t, result.Updated)
			require.Zero(t, result.Errors)

			rec, err := coord.Attendance().Find(ctx, 7, testDate)
			require.NoError(t, err)
			require.Equal(t, types.StatusPresent, rec.Status)

			again, err := engine.Reconcile(ctx, testDate, rows)
			require.NoError(t, err)
			require.Zero(t, again.Created)
			require.Zero(t, again.Updated)
			require.Zero(t, again.Errors)
		})
	}
}

func TestReconcile_UnknownMember(t *testing.T) {
	ctx := context.Background()
	engine, coord := newEngine(t, false)
	seedMembers(t, coord, 1)

	result, err := engine.Reconcile(ctx, testDate, []Row{memberRow("999", "present", "")})
	require.NoError(t, err)
	require.Equal(t, 1, result.Errors)
	require.Zero(t, result.Created)
	require.Contains(t, result.ErrorDetails[0], "999")

	records, err := coord.Attendance().GetAll(ctx, storage.AttendanceFilter{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestReconcile_MemberRules(t *testing.T) {
	ctx := context.Background()
	engine, coord := newEngine(t, false)
	seedMembers(t, coord, 3)

	result, err := engine.Reconcile(ctx, testDate, []Row{
		memberRow("1", "Present", ""),
		memberRow("2", "not recorded", ""),
		memberRow("3", "late", ""),
		memberRow("abc", "present", ""),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 2, result.Errors)

	_, err = coord.Attendance().Find(ctx, 2, testDate)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Notes change is an update; "not recorded" against an existing record
	// becomes other.
	result, err = engine.Reconcile(ctx, testDate, []Row{memberRow("1", "present", "arrived late")})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	result, err = engine.Reconcile(ctx, testDate, []Row{memberRow("1", "NOT RECORDED", "arrived late")})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	rec, err := coord.Attendance().Find(ctx, 1, testDate)
	require.NoError(t, err)
	require.Equal(t, types.StatusOther, rec.Status)
	require.Equal(t, "arrived late", rec.Notes)
}

func TestReconcile_LaterRowSeesEarlierRow(t *testing.T) {
	ctx := context.Background()
	engine, coord := newEngine(t, true)
	seedMembers(t, coord, 1)

	result, err := engine.Reconcile(ctx, testDate, []Row{
		memberRow("1", "present", ""),
		memberRow("1", "absent", ""),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 1, result.Updated)

	records, err := coord.Flat().Attendance(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, types.StatusAbsent, records[0].Status)
}

func TestReconcile_SkipsTotalsAndIncompleteRows(t *testing.T) {
	ctx := context.Background()
	engine, coord := newEngine(t, false)
	seedMembers(t, coord, 1)

	result, err := engine.Reconcile(ctx, testDate, []Row{
		{ColType: TypeTotals, ColID: "x", ColFirstName: "All", ColLastName: "Rows", ColStatus: "12"},
		{ColType: TypeMember, ColID: "1", ColFirstName: "", ColLastName: "Last", ColStatus: "present"},
		{ColType: "", ColID: "1", ColFirstName: "First", ColLastName: "Last", ColStatus: "present"},
	})
	require.NoError(t, err)
	require.Equal(t, types.NewSyncResult(), result)
}

func TestReconcile_Visitors(t *testing.T) {
	ctx := context.Background()
	engine, coord := newEngine(t, false)

	v, err := coord.Visitors().Create(ctx, &types.Visitor{FirstName: "Grace", LastName: "Hopper", SabbathDate: "2024-08-09"})
	require.NoError(t, err)

	visitor := func(first, last, status, notes string) Row {
		return Row{ColType: TypeVisitor, ColID: "v", ColFirstName: first, ColLastName: last, ColStatus: status, ColNotes: notes}
	}

	result, err := engine.Reconcile(ctx, testDate, []Row{
		visitor("grace", "hopper", "present", "returning guest"),
		visitor("Alan", "Turing", "present", ""),
		visitor("Grace", "Hopper", "absent", ""),
		visitor("Grace", "Hopper", "present", ""),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Zero(t, result.Created)
	require.Equal(t, 2, result.Errors)

	found, err := coord.Visitors().FindByName(ctx, "Grace", "Hopper", "")
	require.NoError(t, err)
	require.Equal(t, v.ID, found.ID)
	require.Equal(t, "returning guest", found.Notes)
}

func TestReconcile_VisitorPrefersVisitOnSheetDate(t *testing.T) {
	ctx := context.Background()
	engine, coord := newEngine(t, false)

	earlier, err := coord.Visitors().Create(ctx, &types.Visitor{FirstName: "Grace", LastName: "Hopper", SabbathDate: "2024-08-09", Notes: "first visit"})
	require.NoError(t, err)
	current, err := coord.Visitors().Create(ctx, &types.Visitor{FirstName: "Grace", LastName: "Hopper", SabbathDate: testDate})
	require.NoError(t, err)

	result, err := engine.Reconcile(ctx, testDate, []Row{
		{ColType: TypeVisitor, ColID: "v", ColFirstName: "Grace", ColLastName: "Hopper", ColStatus: "present", ColNotes: "stayed for lunch"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	visits, err := coord.Visitors().GetAll(ctx, storage.VisitorFilter{})
	require.NoError(t, err)
	notes := make(map[string]string)
	for _, v := range visits {
		notes[v.ID] = v.Notes
	}
	require.Equal(t, "first visit", notes[earlier.ID])
	require.Equal(t, "stayed for lunch", notes[current.ID])
}

func TestReconcile_UnknownRowType(t *testing.T) {
	engine, _ := newEngine(t, false)
	result, err := engine.Reconcile(context.Background(), testDate, []Row{
		{ColType: "Staff", ColID: "1", ColFirstName: "A", ColLastName: "B"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Errors)
	require.True(t, strings.Contains(result.ErrorDetails[0], "Staff"))
}

func TestReconcile_InvalidDateAndCancel(t *testing.T) {
	engine, _ := newEngine(t, false)

	_, err := engine.Reconcile(context.Background(), "8/16", nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Reconcile(ctx, testDate, []Row{memberRow("1", "present", "")})
	require.ErrorIs(t, err, context.Canceled)
}

type panickyStore struct{ Store }

func (panickyStore) Member(context.Context, int64) (*types.Member, error) {
	panic("boom")
}

func TestReconcile_PanicBecomesRowError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	engine := New(panickyStore{}, logger)

	result, err := engine.Reconcile(context.Background(), testDate, []Row{memberRow("1", "present", "")})
	require.NoError(t, err)
	require.Equal(t, 1, result.Errors)
	require.Contains(t, result.ErrorDetails[0], "boom")
}
