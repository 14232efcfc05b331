package flatstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rollcall/attendance/internal/types"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	opts := DefaultOptions()
	opts.CacheTTL = ttl
	s, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestOpen_EmptyDir(t *testing.T) {
	if _, err := Open("", DefaultOptions()); err == nil {
		t.Fatal("expected error for empty data directory")
	}
}

func TestRead_MissingDocument(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	members, err := s.Members(ctx)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("expected empty collection, got %d", len(members))
	}
}

func TestRead_EmptyAndBOMDocuments(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	if err := os.WriteFile(s.Path(CollectionVisitors), []byte("  \n"), 0600); err != nil {
		t.Fatal(err)
	}
	visitors, err := s.Visitors(ctx)
	if err != nil || len(visitors) != 0 {
		t.Fatalf("expected empty visitors, got %v, %v", visitors, err)
	}

	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`[{"id":3,"memberId":1,"sabbathDate":"2024-01-06","status":"present"}]`)...)
	if err := os.WriteFile(s.Path(CollectionAttendance), bom, 0600); err != nil {
		t.Fatal(err)
	}
	records, err := s.Attendance(ctx)
	if err != nil {
		t.Fatalf("Attendance failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != 3 {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestRead_CorruptDocument(t *testing.T) {
	s := newTestStore(t, 0)
	if err := os.WriteFile(s.Path(CollectionMembers), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Members(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWrite_RoundTripAndNoTempLeft(t *testing.T) {
	s := newTestStore(t, DefaultCacheTTL)
	ctx := context.Background()

	in := []*types.Member{
		{ID: 1, FirstName: "Ada", LastName: "Lovelace", Category: "adult", RegistrationDate: "2024-01-01", IsActive: true},
	}
	if err := s.WriteMembers(ctx, in); err != nil {
		t.Fatalf("WriteMembers failed: %v", err)
	}

	out, err := s.Members(ctx)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(out) != 1 || out[0].FirstName != "Ada" || !out[0].IsActive {
		t.Errorf("unexpected members: %+v", out)
	}

	if _, err := os.Stat(s.Path(CollectionMembers) + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestWrite_NilSliceWritesEmptyArray(t *testing.T) {
	s := newTestStore(t, 0)
	if err := s.WriteVisitors(context.Background(), nil); err != nil {
		t.Fatalf("WriteVisitors failed: %v", err)
	}
	data, err := os.ReadFile(s.Path(CollectionVisitors))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("expected [], got %q", data)
	}
}

func TestCache_ServesUntilExpiry(t *testing.T) {
	now := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.Now = func() time.Time { return now }
	s, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.WriteAttendance(ctx, []*types.AttendanceRecord{{ID: 1, MemberID: 1, SabbathDate: "2024-01-06", Status: types.StatusPresent}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Attendance(ctx); err != nil {
		t.Fatal(err)
	}

	// Out-of-band edit is hidden by the cache.
	external := `[{"id":1,"memberId":1,"sabbathDate":"2024-01-06","status":"absent"}]`
	if err := os.WriteFile(s.Path(CollectionAttendance), []byte(external), 0600); err != nil {
		t.Fatal(err)
	}
	records, _ := s.Attendance(ctx)
	if records[0].Status != types.StatusPresent {
		t.Errorf("expected cached status present, got %s", records[0].Status)
	}

	now = now.Add(DefaultCacheTTL)
	records, _ = s.Attendance(ctx)
	if records[0].Status != types.StatusAbsent {
		t.Errorf("expected fresh status absent after expiry, got %s", records[0].Status)
	}
}

func TestCache_InvalidatedOnWrite(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := s.WriteMembers(ctx, []*types.Member{{ID: 1, FirstName: "A"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Members(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteMembers(ctx, []*types.Member{{ID: 1, FirstName: "A"}, {ID: 2, FirstName: "B"}}); err != nil {
		t.Fatal(err)
	}
	members, _ := s.Members(ctx)
	if len(members) != 2 {
		t.Errorf("expected 2 members after write, got %d", len(members))
	}
}

func TestCache_ReadsDoNotAlias(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := s.WriteMembers(ctx, []*types.Member{{ID: 1, FirstName: "Ada"}}); err != nil {
		t.Fatal(err)
	}
	first, _ := s.Members(ctx)
	first[0].FirstName = "mutated"

	second, _ := s.Members(ctx)
	if second[0].FirstName != "Ada" {
		t.Errorf("cached copy was aliased: %q", second[0].FirstName)
	}
}

func TestInvalidateAll(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := s.WriteMembers(ctx, []*types.Member{{ID: 1}}); err != nil {
		t.Fatal(err)
	}
	_, _ = s.Members(ctx)
	if err := os.WriteFile(s.Path(CollectionMembers), []byte(`[{"id":1},{"id":2}]`), 0600); err != nil {
		t.Fatal(err)
	}
	s.InvalidateAll()
	members, _ := s.Members(ctx)
	if len(members) != 2 {
		t.Errorf("expected 2 members after InvalidateAll, got %d", len(members))
	}
}

func TestNextIDs(t *testing.T) {
	if got := NextMemberID(nil); got != 1 {
		t.Errorf("NextMemberID(nil) = %d, want 1", got)
	}
	if got := NextMemberID([]*types.Member{{ID: 4}, {ID: 9}, {ID: 2}}); got != 10 {
		t.Errorf("NextMemberID = %d, want 10", got)
	}
	if got := NextAttendanceID([]*types.AttendanceRecord{{ID: 7}}); got != 8 {
		t.Errorf("NextAttendanceID = %d, want 8", got)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t, 0)
	if err := s.WriteMembers(context.Background(), []*types.Member{{ID: 1}}); err != nil {
		t.Fatal(err)
	}
	sizes, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if sizes[CollectionMembers] == 0 {
		t.Error("expected non-zero members size")
	}
	if sizes[CollectionVisitors] != 0 {
		t.Errorf("expected zero visitors size, got %d", sizes[CollectionVisitors])
	}
	if filepath.Dir(s.Path(CollectionMembers)) != s.Dir() {
		t.Error("document path outside data dir")
	}
}

func TestRead_CancelledContext(t *testing.T) {
	s := newTestStore(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Members(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCache_WriteDuringReadIsNotOverwritten(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	v1 := []*types.AttendanceRecord{{ID: 1, MemberID: 1, SabbathDate: "2024-01-06", Status: types.StatusPresent}}
	if err := s.WriteAttendance(ctx, v1); err != nil {
		t.Fatal(err)
	}

	// A write lands after the reader has the old bytes but before it
	// fills the cache.
	fired := false
	s.afterRead = func(name string) {
		if fired || name != CollectionAttendance {
			return
		}
		fired = true
		v2 := append(v1, &types.AttendanceRecord{ID: 2, MemberID: 2, SabbathDate: "2024-01-06", Status: types.StatusAbsent})
		if err := s.WriteAttendance(ctx, v2); err != nil {
			t.Errorf("concurrent write failed: %v", err)
		}
	}

	stale, err := s.Attendance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 {
		t.Fatalf("in-flight read should see the old document, got %d records", len(stale))
	}

	records, err := s.Attendance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("stale bytes were cached: got %d records, want 2", len(records))
	}
}

func TestLock_SerializesStoresOnSameDir(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	unlock, err := a.Lock(ctx, CollectionAttendance)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := b.Lock(waitCtx, CollectionAttendance); err == nil {
		t.Fatal("second store took a held lock")
	}

	// Other collections stay independent.
	unlockMembers, err := b.Lock(ctx, CollectionMembers)
	if err != nil {
		t.Fatalf("Lock members failed: %v", err)
	}
	unlockMembers()

	unlock()
	unlock, err = b.Lock(ctx, CollectionAttendance)
	if err != nil {
		t.Fatalf("Lock after release failed: %v", err)
	}
	unlock()
}

func TestLock_DropsCachedCopy(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := a.WriteMembers(ctx, []*types.Member{{ID: 1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Members(ctx); err != nil {
		t.Fatal(err)
	}

	// Another process rewrites the document.
	if err := os.WriteFile(a.Path(CollectionMembers), []byte(`[{"id":1},{"id":2}]`), 0600); err != nil {
		t.Fatal(err)
	}

	unlock, err := a.Lock(ctx, CollectionMembers)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()
	members, err := a.Members(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Errorf("locked read served a stale cache: got %d members", len(members))
	}
}

func TestLock_UnknownCollection(t *testing.T) {
	s := newTestStore(t, 0)
	if _, err := s.Lock(context.Background(), "ledger"); err == nil {
		t.Fatal("expected error for unknown collection")
	}
}
