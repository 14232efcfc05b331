// Package reconcile turns external spreadsheet rows for one attendance date
// into create, update, skip or error outcomes against the stored records.
//
// Rows are applied in input order through the storage coordinator, so a
// later row for the same (member, date) sees the earlier row's effect.
// Per-row problems are recorded in the SyncResult and never stop the batch.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/internal/storage"
	"github.com/rollcall/attendance/internal/types"
)

// Store is what the engine needs from storage.
type Store interface {
	Member(ctx context.Context, id int64) (*types.Member, error)
	FindAttendance(ctx context.Context, memberID int64, date string) (*types.AttendanceRecord, error)
	UpsertAttendance(ctx context.Context, rec *types.AttendanceRecord) (*types.AttendanceRecord, bool, error)
	FindVisitor(ctx context.Context, first, last, date string) (*types.Visitor, error)
	UpdateVisitor(ctx context.Context, id string, v *types.Visitor) (*types.Visitor, error)
}

// coordinatorStore adapts the coordinator's repositories to Store.
type coordinatorStore struct {
	c *storage.Coordinator
}

// FromCoordinator returns a Store backed by c.
func FromCoordinator(c *storage.Coordinator) Store {
	return coordinatorStore{c: c}
}

func (s coordinatorStore) Member(ctx context.Context, id int64) (*types.Member, error) {
	return s.c.Members().Get(ctx, id)
}

func (s coordinatorStore) FindAttendance(ctx context.Context, memberID int64, date string) (*types.AttendanceRecord, error) {
	return s.c.Attendance().Find(ctx, memberID, date)
}

func (s coordinatorStore) UpsertAttendance(ctx context.Context, rec *types.AttendanceRecord) (*types.AttendanceRecord, bool, error) {
	return s.c.Attendance().Upsert(ctx, rec)
}

func (s coordinatorStore) FindVisitor(ctx context.Context, first, last, date string) (*types.Visitor, error) {
	return s.c.Visitors().FindByName(ctx, first, last, date)
}

func (s coordinatorStore) UpdateVisitor(ctx context.Context, id string, v *types.Visitor) (*types.Visitor, error) {
	return s.c.Visitors().Update(ctx, id, v)
}

// Engine reconciles row batches.
type Engine struct {
	store  Store
	logger logrus.FieldLogger
}

// New creates an engine over store.
func New(store Store, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{store: store, logger: logger.WithField("component", "reconcile")}
}

// Reconcile applies rows for date, which must already be in ISO form.
//
// The error is non-nil only when the batch cannot continue: the context was
// cancelled, or no store accepted a write. The partial result is returned
// alongside it.
func (e *Engine) Reconcile(ctx context.Context, date string, rows []Row) (types.SyncResult, error) {
	result := types.NewSyncResult()
	if !types.IsISODate(date) {
		return result, fmt.Errorf("attendance date must be YYYY-MM-DD (got %q)", date)
	}
	log := e.logger.WithField("date", date)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !row.identifiable() {
			continue
		}
		if err := e.applyRow(ctx, date, row, &result); err != nil {
			log.WithError(err).Error("reconciliation aborted")
			return result, err
		}
	}

	log.WithFields(logrus.Fields{
		"created": result.Created,
		"updated": result.Updated,
		"errors":  result.Errors,
	}).Info("reconciled rows")
	return result, nil
}

// applyRow processes one row. Panics become row errors.
func (e *Engine) applyRow(ctx context.Context, date string, row Row, result *types.SyncResult) (fatal error) {
	defer func() {
		if r := recover(); r != nil {
			result.AddError("Row processing error for %s: %v", row.Label(), r)
		}
	}()

	var err error
	switch {
	case strings.EqualFold(row.Type(), TypeMember):
		err = e.memberRow(ctx, date, row, result)
	case strings.EqualFold(row.Type(), TypeVisitor):
		err = e.visitorRow(ctx, date, row, result)
	default:
		result.AddError("Unknown row type %q for %s %s", row.Type(), row.Get(ColFirstName), row.Get(ColLastName))
		return nil
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrTotalWriteFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	result.AddError("Row processing error for %s: %v", row.Label(), err)
	return nil
}

func (e *Engine) memberRow(ctx context.Context, date string, row Row, result *types.SyncResult) error {
	rawID := row.Get(ColID)
	memberID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || memberID <= 0 {
		result.AddError("Invalid member ID %q", rawID)
		return nil
	}

	if _, err := e.store.Member(ctx, memberID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			result.AddError("Member ID %d not found", memberID)
			return nil
		}
		return err
	}

	status := types.ParseStatus(row.Get(ColStatus))
	if !status.Valid() && status != types.StatusNotRecorded {
		result.AddError("Invalid status %q for member %d", row.Get(ColStatus), memberID)
		return nil
	}
	notes := row.Get(ColNotes)

	existing, err := e.store.FindAttendance(ctx, memberID, date)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if existing != nil {
		target := status
		if target == types.StatusNotRecorded {
			target = types.StatusOther
		}
		if existing.Status == target && existing.Notes == notes {
			return nil
		}
		if _, _, err := e.store.UpsertAttendance(ctx, &types.AttendanceRecord{
			MemberID: memberID, SabbathDate: date, Status: target, Notes: notes,
		}); err != nil {
			return err
		}
		result.Updated++
		return nil
	}

	if status == types.StatusNotRecorded {
		return nil
	}
	if _, _, err := e.store.UpsertAttendance(ctx, &types.AttendanceRecord{
		MemberID: memberID, SabbathDate: date, Status: status, Notes: notes,
	}); err != nil {
		return err
	}
	result.Created++
	return nil
}

func (e *Engine) visitorRow(ctx context.Context, date string, row Row, result *types.SyncResult) error {
	first, last := row.Get(ColFirstName), row.Get(ColLastName)

	status := types.ParseStatus(row.Get(ColStatus))
	if status != types.StatusPresent {
		result.AddError("Invalid status %q for visitor %s %s", row.Get(ColStatus), first, last)
		return nil
	}

	visitor, err := e.store.FindVisitor(ctx, first, last, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			result.AddError("Visitor %s %s not found", first, last)
			return nil
		}
		return err
	}

	notes := row.Get(ColNotes)
	if notes == "" || notes == visitor.Notes {
		return nil
	}
	updated := *visitor
	updated.Notes = notes
	if _, err := e.store.UpdateVisitor(ctx, visitor.ID, &updated); err != nil {
		return err
	}
	result.Updated++
	return nil
}
