// Package flatstore is the canonical, always-available record store.
//
// Each collection (members, attendance, visitors) is one JSON array document
// in the data directory. Reads may be served from a short-lived cache that is
// invalidated on every write to the same collection. Writes replace the whole
// document atomically via a temp file and rename.
//
// Writers serialize through Lock, which holds a per-collection lock file so
// that separate processes sharing a data directory take turns. A caller that
// reads a collection, mutates it in memory and writes it back does so while
// holding that collection's lock.
package flatstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/internal/lockfile"
)

// Collection names.
const (
	CollectionMembers    = "members"
	CollectionAttendance = "attendance"
	CollectionVisitors   = "visitors"
)

// Collections lists every collection the store manages.
var Collections = []string{CollectionMembers, CollectionAttendance, CollectionVisitors}

// DefaultCacheTTL is how long a read stays cached.
const DefaultCacheTTL = 5 * time.Second

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures a Store.
type Options struct {
	// CacheTTL is the read cache lifetime. Zero disables caching.
	CacheTTL time.Duration

	// Logger for store activity (default: standard logrus logger)
	Logger logrus.FieldLogger

	// Now overrides the clock for cache expiry.
	Now func() time.Time
}

// DefaultOptions returns the options used by Open when none are given.
func DefaultOptions() Options {
	return Options{
		CacheTTL: DefaultCacheTTL,
		Logger:   logrus.StandardLogger(),
		Now:      time.Now,
	}
}

type cacheEntry struct {
	data     []byte
	storedAt time.Time
}

// Store reads and writes whole-collection JSON documents.
type Store struct {
	dir    string
	ttl    time.Duration
	logger logrus.FieldLogger
	now    func() time.Time

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
	// gen counts writes and invalidations per collection. A read only
	// fills the cache if the generation did not move while it was on disk.
	gen map[string]uint64

	locks map[string]*lockfile.Lock

	// afterRead runs between the disk read and the cache fill. Tests only.
	afterRead func(name string)
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string, opts Options) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	locks := make(map[string]*lockfile.Lock, len(Collections))
	for _, name := range Collections {
		locks[name] = lockfile.New(filepath.Join(dir, name+".lock"))
	}
	return &Store{
		dir:    dir,
		ttl:    opts.CacheTTL,
		logger: opts.Logger.WithField("component", "flatstore"),
		now:    opts.Now,
		cache:  make(map[string]cacheEntry),
		gen:    make(map[string]uint64),
		locks:  locks,
	}, nil
}

// Lock takes the exclusive write lock for a collection, waiting for holders
// in this and other processes. The cached copy is dropped once the lock is
// held, so the next read sees what the previous holder wrote.
func (s *Store) Lock(ctx context.Context, name string) (unlock func(), err error) {
	l, ok := s.locks[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	if err := l.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", name, err)
	}
	s.Invalidate(name)
	return func() {
		if err := l.Unlock(); err != nil {
			s.logger.WithError(err).WithField("collection", name).Warn("failed to release collection lock")
		}
	}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the document path for a collection.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Read decodes the whole collection into out, which must be a pointer to a
// slice. A missing or empty document decodes as an empty collection.
func (s *Store) Read(ctx context.Context, name string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.load(name)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		data = []byte("[]")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.Path(name), err)
	}
	return nil
}

// load returns the raw document bytes, consulting the cache first.
func (s *Store) load(name string) ([]byte, error) {
	var gen uint64
	if s.ttl > 0 {
		s.cacheMu.Lock()
		entry, ok := s.cache[name]
		gen = s.gen[name]
		s.cacheMu.Unlock()
		if ok && s.now().Sub(entry.storedAt) < s.ttl {
			return entry.data, nil
		}
	}

	// #nosec G304 - path built from the configured data dir and a fixed collection name
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.Path(name), err)
	}
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if s.afterRead != nil {
		s.afterRead(name)
	}

	if s.ttl > 0 {
		s.cacheMu.Lock()
		if s.gen[name] == gen {
			s.cache[name] = cacheEntry{data: data, storedAt: s.now()}
		}
		s.cacheMu.Unlock()
	}
	return data, nil
}

// Write atomically replaces the collection document with records and
// invalidates the cached copy.
func (s *Store) Write(ctx context.Context, name string, records any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if bytes.Equal(data, []byte("null")) {
		data = []byte("[]")
	}

	path := s.Path(name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.Invalidate(name)
	s.logger.WithField("collection", name).Debug("collection written")
	return nil
}

// Invalidate drops the cached copy of one collection.
func (s *Store) Invalidate(name string) {
	s.cacheMu.Lock()
	delete(s.cache, name)
	s.gen[name]++
	s.cacheMu.Unlock()
}

// InvalidateAll drops every cached collection.
func (s *Store) InvalidateAll() {
	s.cacheMu.Lock()
	s.cache = make(map[string]cacheEntry)
	for _, name := range Collections {
		s.gen[name]++
	}
	s.cacheMu.Unlock()
}

// Stats returns the on-disk size in bytes of each collection document.
// Missing documents report zero.
func (s *Store) Stats() (map[string]int64, error) {
	sizes := make(map[string]int64, len(Collections))
	for _, name := range Collections {
		info, err := os.Stat(s.Path(name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				sizes[name] = 0
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		sizes[name] = info.Size()
	}
	return sizes, nil
}
