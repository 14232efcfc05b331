// Package lockfile provides advisory, cross-process exclusive locks backed
// by a file in the data directory.
//
// A Lock serializes holders in the same process through a mutex and holders
// in other processes through the operating system's file lock, so a daemon
// and a one-shot CLI command sharing a data directory never interleave their
// read-modify-write sections.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("lock held by another process")

// DefaultPollInterval is how often Lock retries a contended file lock.
const DefaultPollInterval = 25 * time.Millisecond

// Lock is an exclusive lock on one path. The zero value is not usable; use
// New.
type Lock struct {
	path string
	poll time.Duration

	// mu serializes holders within this process.
	mu   chan struct{}
	fmu  sync.Mutex
	file *os.File
}

// New returns an unlocked Lock on path. The file is created on first use.
func New(path string) *Lock {
	return &Lock{
		path: path,
		poll: DefaultPollInterval,
		mu:   make(chan struct{}, 1),
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Lock blocks until the lock is held or ctx is done.
func (l *Lock) Lock(ctx context.Context) error {
	select {
	case l.mu <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		err := l.acquire()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLocked) {
			<-l.mu
			return err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			<-l.mu
			return ctx.Err()
		}
	}
}

// TryLock takes the lock without waiting. It returns ErrLocked when the
// lock is held here or elsewhere.
func (l *Lock) TryLock() error {
	select {
	case l.mu <- struct{}{}:
	default:
		return ErrLocked
	}
	if err := l.acquire(); err != nil {
		<-l.mu
		return err
	}
	return nil
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
func (l *Lock) Unlock() error {
	l.fmu.Lock()
	f := l.file
	l.file = nil
	l.fmu.Unlock()
	if f == nil {
		return nil
	}

	err := unlockFile(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	<-l.mu
	return err
}

func (l *Lock) acquire() error {
	// #nosec G304 - lock path is derived from the configured data dir
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return err
	}
	l.fmu.Lock()
	l.file = f
	l.fmu.Unlock()
	return nil
}
