package lockfile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryLock_SecondHolderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.lock")
	a, b := New(path), New(path)

	require.NoError(t, a.TryLock())
	require.ErrorIs(t, b.TryLock(), ErrLocked)
	require.ErrorIs(t, a.TryLock(), ErrLocked)

	require.NoError(t, a.Unlock())
	require.NoError(t, b.TryLock())
	require.NoError(t, b.Unlock())
}

func TestLock_WaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.lock")
	a, b := New(path), New(path)
	require.NoError(t, a.Lock(context.Background()))

	acquired := make(chan error, 1)
	go func() {
		acquired <- b.Lock(context.Background())
	}()

	select {
	case err := <-acquired:
		t.Fatalf("second Lock returned before release: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, a.Unlock())
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock never acquired")
	}
	require.NoError(t, b.Unlock())
}

func TestLock_HonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.lock")
	a, b := New(path), New(path)
	require.NoError(t, a.Lock(context.Background()))
	defer a.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := b.Lock(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	// A cancelled wait leaves the lock usable.
	require.NoError(t, a.Unlock())
	require.NoError(t, b.TryLock())
	require.NoError(t, b.Unlock())
}

func TestLock_SerializesGoroutines(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "counter.lock"))
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Lock(context.Background()); err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			_ = l.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestUnlock_NotHeld(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "idle.lock"))
	require.NoError(t, l.Unlock())
}
