package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/types"
)

// newBenchCoordinator seeds members and a season of weekly attendance.
func newBenchCoordinator(b *testing.B, withMirror bool, members, weeks int) *Coordinator {
	b.Helper()
	ctx := context.Background()
	dir := b.TempDir()
	flat, err := flatstore.Open(dir, flatstore.DefaultOptions())
	if err != nil {
		b.Fatalf("failed to open flat store: %v", err)
	}
	capability := Unavailable(ErrMirrorDisabled)
	if withMirror {
		capability = Negotiate(ctx, filepath.Join(dir, "mirror.db"), quietLogger())
	}
	coord := New(flat, capability, quietLogger())
	b.Cleanup(func() { _ = coord.Close() })

	for i := 0; i < members; i++ {
		if _, err := coord.Members().Create(ctx, member("Bench", fmt.Sprintf("%04d", i))); err != nil {
			b.Fatalf("failed to seed member: %v", err)
		}
	}
	for w := 0; w < weeks; w++ {
		date := fmt.Sprintf("2024-%02d-%02d", 1+w/4, 1+(w%4)*7)
		for id := int64(1); id <= int64(members); id++ {
			_, _, err := coord.Attendance().Upsert(ctx, &types.AttendanceRecord{
				MemberID: id, SabbathDate: date, Status: types.StatusPresent,
			})
			if err != nil {
				b.Fatalf("failed to seed attendance: %v", err)
			}
		}
	}
	return coord
}

func benchmarkStores(b *testing.B, fn func(b *testing.B, coord *Coordinator)) {
	for _, withMirror := range []bool{false, true} {
		name := "flat"
		if withMirror {
			name = "mirror"
		}
		b.Run(name, func(b *testing.B) {
			coord := newBenchCoordinator(b, withMirror, 50, 8)
			b.ResetTimer()
			fn(b, coord)
		})
	}
}

func BenchmarkAttendanceGetAllByDate(b *testing.B) {
	benchmarkStores(b, func(b *testing.B, coord *Coordinator) {
		ctx := context.Background()
		for i := 0; i < b.N; i++ {
			if _, err := coord.Attendance().GetAll(ctx, AttendanceFilter{Date: "2024-01-08"}); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkAttendanceUpsert(b *testing.B) {
	benchmarkStores(b, func(b *testing.B, coord *Coordinator) {
		ctx := context.Background()
		statuses := []types.Status{types.StatusAbsent, types.StatusPresent}
		for i := 0; i < b.N; i++ {
			_, _, err := coord.Attendance().Upsert(ctx, &types.AttendanceRecord{
				MemberID: int64(1 + i%50), SabbathDate: "2024-01-01", Status: statuses[i%2],
			})
			if err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkStats(b *testing.B) {
	benchmarkStores(b, func(b *testing.B, coord *Coordinator) {
		ctx := context.Background()
		for i := 0; i < b.N; i++ {
			if _, err := coord.Stats(ctx, ""); err != nil {
				b.Fatal(err)
			}
		}
	})
}
