// Package storage coordinates writes and reads across the canonical flat
// store and the optional relational mirror.
//
// Write policy: the canonical flat store is always written. When the mirror
// is available it is attempted first so the stored row (timestamps, ids) can
// be carried into the canonical copy, but a mirror failure never prevents
// the canonical write. Ids are allocated from the canonical store (max+1 for
// members and attendance, a UUID for visitors) and passed to the mirror
// explicitly, so both stores agree on identity.
//
// Reads go to the mirror while it is available and fall back to the flat
// store with identical filtering and ordering. Point lookups used by
// reconciliation always read the canonical store.
//
// A mirror failure other than a constraint violation downgrades the
// coordinator to flat-only for the rest of the process lifetime.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/mirror"
	"github.com/rollcall/attendance/internal/types"
)

var (
	// ErrNotFound means no store holds the requested record.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means the write would break (memberId, sabbathDate)
	// uniqueness in the canonical store.
	ErrConflict = errors.New("attendance record already exists for member and date")

	// ErrTotalWriteFailure means neither store accepted a mutation.
	ErrTotalWriteFailure = errors.New("no store accepted the write")

	// ErrPartialDelete means a hard delete reached only some of the
	// available stores.
	ErrPartialDelete = errors.New("delete applied to only some stores")

	// ErrMirrorUnavailable is returned by operations that need the mirror.
	ErrMirrorUnavailable = errors.New("relational mirror unavailable")
)

// Repository is the four-operation contract every entity exposes.
type Repository[T any, K comparable, F any] interface {
	Create(ctx context.Context, item *T) (*T, error)
	GetAll(ctx context.Context, filter F) ([]*T, error)
	Update(ctx context.Context, id K, item *T) (*T, error)
	Delete(ctx context.Context, id K) error
}

// Filters share the mirror's query options.
type (
	MemberFilter     = mirror.MemberFilter
	AttendanceFilter = mirror.AttendanceFilter
	VisitorFilter    = mirror.VisitorFilter
)

// Coordinator owns both stores.
type Coordinator struct {
	flat   *flatstore.Store
	logger logrus.FieldLogger
	now    func() time.Time

	mirrorMu sync.RWMutex
	mirror   *mirror.DB
}

// New creates a coordinator over flat and, if capability is Available, the
// mirror it carries.
func New(flat *flatstore.Store, capability Capability, logger logrus.FieldLogger) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		flat:   flat,
		mirror: capability.mirror,
		logger: logger.WithField("component", "storage"),
		now:    time.Now,
	}
}

// Clock overrides the timestamp source.
func (c *Coordinator) Clock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Flat returns the canonical store.
func (c *Coordinator) Flat() *flatstore.Store {
	return c.flat
}

// Mirror returns the mirror, or nil once it is unavailable.
func (c *Coordinator) Mirror() *mirror.DB {
	c.mirrorMu.RLock()
	defer c.mirrorMu.RUnlock()
	return c.mirror
}

// MirrorAvailable reports whether the mirror is still in use.
func (c *Coordinator) MirrorAvailable() bool {
	return c.Mirror() != nil
}

// Close closes the mirror if it is still open.
func (c *Coordinator) Close() error {
	c.mirrorMu.Lock()
	defer c.mirrorMu.Unlock()
	if c.mirror == nil {
		return nil
	}
	err := c.mirror.Close()
	c.mirror = nil
	return err
}

// Members returns the member repository.
func (c *Coordinator) Members() *MemberRepo {
	return &MemberRepo{c: c}
}

// Attendance returns the attendance repository.
func (c *Coordinator) Attendance() *AttendanceRepo {
	return &AttendanceRepo{c: c}
}

// Visitors returns the visitor repository.
func (c *Coordinator) Visitors() *VisitorRepo {
	return &VisitorRepo{c: c}
}

// Stats tallies attendance statuses for date, or for every date when date
// is empty.
func (c *Coordinator) Stats(ctx context.Context, date string) (types.AttendanceStats, error) {
	records, err := c.Attendance().GetAll(ctx, AttendanceFilter{Date: date})
	if err != nil {
		return types.AttendanceStats{}, err
	}
	return types.ComputeStats(records, date), nil
}

// mirrorFailed logs a mirror error. Constraint violations reject only the
// current operation; anything else marks the mirror unavailable.
func (c *Coordinator) mirrorFailed(op string, err error) {
	log := c.logger.WithError(err).WithField("op", op)
	if mirror.IsConstraint(err) {
		log.Warn("relational mirror rejected write")
		return
	}

	c.mirrorMu.Lock()
	db := c.mirror
	c.mirror = nil
	c.mirrorMu.Unlock()

	if db != nil {
		_ = db.Close()
		log.Error("relational mirror failed, falling back to flat store for the rest of this process")
	}
}

// lock takes the flat store's collection locks for a read-modify-write
// section. The locks span processes, so a CLI command and a running daemon
// on the same data directory take turns. Callers pass names in members,
// attendance, visitors order.
func (c *Coordinator) lock(ctx context.Context, names ...string) (func(), error) {
	held := make([]func(), 0, len(names))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, name := range names {
		u, err := c.flat.Lock(ctx, name)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, u)
	}
	return release, nil
}

func (c *Coordinator) timestamp() time.Time {
	return c.now().UTC()
}

// totalFailure joins the per-store causes under ErrTotalWriteFailure.
func totalFailure(op string, mirrorErr, flatErr error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrTotalWriteFailure, mirrorErr, flatErr))
}
