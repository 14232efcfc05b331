package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rollcall/attendance/internal/reconcile"
)

var testHeader = []any{"Type", "ID", "First Name", "Last Name", "Category", "Status", "Notes", "Sabbath Date"}

// writeWorkbook saves sheets (name -> rows after the header) to path.
func writeWorkbook(t *testing.T, path string, sheets map[string][][]any, order ...string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		require.NoError(t, f.SetSheetRow(name, "A1", &testHeader))
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			require.NoError(t, err)
			row := row
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func newFileSource(t *testing.T) (*FileSource, string) {
	t.Helper()
	dataDir := t.TempDir()
	store := NewConfigStore(dataDir)
	cfg, err := store.UpdateWatcher(WatcherPatch{})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.WatchDirectory, 0755))

	src := NewFileSource(store, quietLogger())
	src.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return src, cfg.WatchDirectory
}

func TestFileSource_DetectsNewAndChangedFiles(t *testing.T) {
	src, dir := newFileSource(t)
	ctx := context.Background()
	path := filepath.Join(dir, "attendance-2025-01-04.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {{"Member", "1", "Ada", "Lovelace", "Adult", "present", ""}},
	}, "Sheet1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	units, err := src.Check(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.Equal(t, "2025-01-04", units[0].Date)
	require.NoError(t, units[0].Err)
	require.Len(t, units[0].Rows, 1)
	require.Equal(t, "Ada", units[0].Rows[0].Get(reconcile.ColFirstName))

	units, err = src.Check(ctx)
	require.NoError(t, err)
	require.Empty(t, units, "unchanged file is not reported again")

	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {
			{"Member", "1", "Ada", "Lovelace", "Adult", "present", ""},
			{"Member", "2", "Alan", "Turing", "Adult", "absent", "travel"},
		},
	}, "Sheet1")
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	units, err = src.Check(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.Len(t, units[0].Rows, 2)

	src.Reset()
	require.Empty(t, src.Signatures())
	units, err = src.Check(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
}

func TestFileSource_MissingDirectoryFailsCycle(t *testing.T) {
	src, dir := newFileSource(t)
	require.NoError(t, os.RemoveAll(dir))

	_, err := src.Check(context.Background())
	require.Error(t, err)
}

func TestReadWorkbook_DatedSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Summary":            {{"TOTALS", "", "", "", "", "", ""}},
		"Sabbath 2025-01-04": {{"Member", "1", "Ada", "Lovelace", "Adult", "present", ""}},
		"Sabbath 2025-01-11": {{"Member", "1", "Ada", "Lovelace", "Adult", "absent", ""}},
	}, "Summary", "Sabbath 2025-01-04", "Sabbath 2025-01-11")

	units := ReadWorkbook(path, "", time.Now())
	require.Len(t, units, 2)
	require.Equal(t, "2025-01-04", units[0].Date)
	require.Equal(t, "roster.xlsx#Sabbath 2025-01-04", units[0].Label)
	require.Equal(t, "2025-01-11", units[1].Date)
	require.Equal(t, "absent", units[1].Rows[0].Get(reconcile.ColStatus))
}

func TestReadWorkbook_DateColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Attendance Details": {
			{"Member", "1", "Ada", "Lovelace", "Adult", "present", "", "2025-01-04"},
			{"Member", "1", "Ada", "Lovelace", "Adult", "absent", "", "1/11/2025"},
			{"Member", "2", "Alan", "Turing", "Adult", "present", "", "2025-01-04"},
			{"Member", "3", "Grace", "Hopper", "Adult", "present", "", "someday"},
		},
	}, "Attendance Details")

	units := ReadWorkbook(path, "", time.Now())
	require.Len(t, units, 3)
	require.Equal(t, "2025-01-04", units[0].Date)
	require.Len(t, units[0].Rows, 2)
	require.Equal(t, "2025-01-11", units[1].Date)
	require.Len(t, units[1].Rows, 1)
	require.Error(t, units[2].Err)
	require.Contains(t, units[2].Err.Error(), "someday")
}

func TestReadWorkbook_DateOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance-2025-01-04.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {{"Member", "1", "Ada", "Lovelace", "Adult", "present", ""}},
	}, "Sheet1")

	units := ReadWorkbook(path, "2/1/2025", time.Now())
	require.Len(t, units, 1)
	require.Equal(t, "2025-02-01", units[0].Date)

	units = ReadWorkbook(path, "not a date", time.Now())
	require.Len(t, units, 1)
	require.Error(t, units[0].Err)
}

func TestReadWorkbook_NoDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {{"Member", "1", "Ada", "Lovelace", "Adult", "present", ""}},
	}, "Sheet1")

	units := ReadWorkbook(path, "", time.Now())
	require.Len(t, units, 1)
	require.ErrorIs(t, units[0].Err, ErrNoDate)
}

func TestReadWorkbook_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0644))

	units := ReadWorkbook(path, "", time.Now())
	require.Len(t, units, 1)
	require.Equal(t, "broken.xlsx", units[0].Label)
	require.Error(t, units[0].Err)
}

func TestDateFromFileName(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"attendance-2025-01-04.xlsx", "2025-01-04", true},
		{"Sabbath 1-4-25.xlsx", "2025-01-04", true},
		{"sabbath_3_15.xlsx", "2025-03-15", true},
		{"roster.xlsx", "", false},
		{"week-13-45.xlsx", "", false},
	}
	for _, tt := range tests {
		got, ok := dateFromFileName(tt.name, now)
		require.Equal(t, tt.ok, ok, tt.name)
		require.Equal(t, tt.want, got, tt.name)
	}
}

func TestFileSource_WatchNudges(t *testing.T) {
	src, dir := newFileSource(t)
	src.debounce = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nudged := make(chan struct{}, 4)
	require.NoError(t, src.Watch(ctx, func() { nudged <- struct{}{} }))

	writeWorkbook(t, filepath.Join(dir, "attendance-2025-01-04.xlsx"), map[string][][]any{
		"Sheet1": {{"Member", "1", "Ada", "Lovelace", "Adult", "present", ""}},
	}, "Sheet1")

	select {
	case <-nudged:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a nudge after writing a spreadsheet")
	}
}
