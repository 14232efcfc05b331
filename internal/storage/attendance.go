package storage

import (
	"context"
	"fmt"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/types"
)

// AttendanceRepo is the coordinator's attendance repository. The canonical
// store never holds two records for one (memberId, sabbathDate).
type AttendanceRepo struct {
	c *Coordinator
}

var _ Repository[types.AttendanceRecord, int64, AttendanceFilter] = (*AttendanceRepo)(nil)

// Create stores a new record. A record for the same key returns ErrConflict.
func (r *AttendanceRepo) Create(ctx context.Context, rec *types.AttendanceRecord) (*types.AttendanceRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid attendance: %w", err)
	}
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionAttendance)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := c.flat.Attendance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read attendance: %w", err)
	}
	if indexAttendanceKey(records, rec.Key()) >= 0 {
		return nil, fmt.Errorf("%s: %w", rec.Key(), ErrConflict)
	}

	item := *rec
	item.ID = flatstore.NextAttendanceID(records)
	now := c.timestamp()
	item.CreatedAt, item.UpdatedAt = now, now

	mirrorErr := ErrMirrorUnavailable
	if db := c.Mirror(); db != nil {
		stored, err := db.CreateAttendance(ctx, &item)
		if err != nil {
			mirrorErr = err
			c.mirrorFailed("create attendance", err)
		} else {
			mirrorErr = nil
			item = *stored
		}
	}

	records = append(records, &item)
	if err := c.flat.WriteAttendance(ctx, records); err != nil {
		if mirrorErr != nil {
			return nil, totalFailure("create attendance", mirrorErr, err)
		}
		c.logger.WithError(err).WithField("key", item.Key().String()).Error("flat store rejected attendance create")
	}
	return &item, nil
}

// Upsert writes the record for rec's (memberId, sabbathDate) key, creating it
// or replacing its status and notes. created reports which happened.
func (r *AttendanceRepo) Upsert(ctx context.Context, rec *types.AttendanceRecord) (stored *types.AttendanceRecord, created bool, err error) {
	if err := rec.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid attendance: %w", err)
	}
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionAttendance)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	records, err := c.flat.Attendance(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read attendance: %w", err)
	}

	now := c.timestamp()
	idx := indexAttendanceKey(records, rec.Key())
	var item types.AttendanceRecord
	if idx >= 0 {
		item = *records[idx]
		item.Status = rec.Status
		item.Notes = rec.Notes
		item.UpdatedAt = now
	} else {
		item = *rec
		item.ID = flatstore.NextAttendanceID(records)
		item.CreatedAt, item.UpdatedAt = now, now
		created = true
	}

	mirrorErr := ErrMirrorUnavailable
	if db := c.Mirror(); db != nil {
		stored, err := db.UpsertAttendance(ctx, &item)
		if err != nil {
			mirrorErr = err
			c.mirrorFailed("upsert attendance", err)
		} else {
			mirrorErr = nil
			if created {
				// The mirror may already hold this key from a write the
				// flat store missed. Its id wins.
				item.ID = stored.ID
				item.CreatedAt = stored.CreatedAt
			}
		}
	}

	if created {
		records = append(records, &item)
	} else {
		records[idx] = &item
	}
	if err := c.flat.WriteAttendance(ctx, records); err != nil {
		if mirrorErr != nil {
			return nil, false, totalFailure("upsert attendance", mirrorErr, err)
		}
		c.logger.WithError(err).WithField("key", item.Key().String()).Error("flat store rejected attendance upsert")
	}
	return &item, created, nil
}

// GetAll lists records. With a date they are ordered by id, otherwise newest
// date first.
func (r *AttendanceRepo) GetAll(ctx context.Context, filter AttendanceFilter) ([]*types.AttendanceRecord, error) {
	c := r.c
	if db := c.Mirror(); db != nil {
		records, err := db.ListAttendance(ctx, filter)
		if err == nil {
			return records, nil
		}
		c.mirrorFailed("list attendance", err)
	}

	records, err := c.flat.Attendance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read attendance: %w", err)
	}
	return filterAttendance(records, filter), nil
}

// Find returns the canonical record for (memberID, date).
func (r *AttendanceRepo) Find(ctx context.Context, memberID int64, date string) (*types.AttendanceRecord, error) {
	records, err := r.c.flat.Attendance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read attendance: %w", err)
	}
	key := types.AttendanceKey{MemberID: memberID, SabbathDate: date}
	if i := indexAttendanceKey(records, key); i >= 0 {
		return records[i], nil
	}
	return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
}

// Update replaces record id.
func (r *AttendanceRepo) Update(ctx context.Context, id int64, rec *types.AttendanceRecord) (*types.AttendanceRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid attendance: %w", err)
	}
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionAttendance)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := c.flat.Attendance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read attendance: %w", err)
	}
	idx := indexAttendance(records, id)
	if idx < 0 {
		return nil, fmt.Errorf("attendance %d: %w", id, ErrNotFound)
	}
	if other := indexAttendanceKey(records, rec.Key()); other >= 0 && other != idx {
		return nil, fmt.Errorf("%s: %w", rec.Key(), ErrConflict)
	}

	item := *records[idx]
	item.MemberID = rec.MemberID
	item.SabbathDate = rec.SabbathDate
	item.Status = rec.Status
	item.Notes = rec.Notes
	item.UpdatedAt = c.timestamp()

	mirrorErr := ErrMirrorUnavailable
	if db := c.Mirror(); db != nil {
		n, err := db.UpdateAttendance(ctx, &item)
		switch {
		case err != nil:
			mirrorErr = err
			c.mirrorFailed("update attendance", err)
		case n == 0:
			// Canonical leads; bring the mirror up to date.
			if _, err := db.UpsertAttendance(ctx, &item); err != nil {
				mirrorErr = err
				c.mirrorFailed("update attendance", err)
			} else {
				mirrorErr = nil
			}
		default:
			mirrorErr = nil
		}
	}

	records[idx] = &item
	if err := c.flat.WriteAttendance(ctx, records); err != nil {
		if mirrorErr != nil {
			return nil, totalFailure("update attendance", mirrorErr, err)
		}
		c.logger.WithError(err).WithField("attendance_id", id).Error("flat store rejected attendance update")
	}
	return &item, nil
}

// Delete removes record id from every available store.
func (r *AttendanceRepo) Delete(ctx context.Context, id int64) error {
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionAttendance)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := c.flat.Attendance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read attendance: %w", err)
	}
	idx := indexAttendance(records, id)

	mirrorFound := false
	var mirrorErr error
	if db := c.Mirror(); db != nil {
		n, err := db.DeleteAttendance(ctx, id)
		if err != nil {
			mirrorErr = err
			c.mirrorFailed("delete attendance", err)
		}
		mirrorFound = n > 0
	}

	if idx < 0 {
		if mirrorErr != nil {
			return totalFailure("delete attendance", mirrorErr, ErrNotFound)
		}
		if !mirrorFound {
			return fmt.Errorf("attendance %d: %w", id, ErrNotFound)
		}
		return nil
	}

	records = append(records[:idx], records[idx+1:]...)
	flatErr := c.flat.WriteAttendance(ctx, records)
	switch {
	case flatErr != nil && (mirrorErr != nil || !mirrorFound):
		return totalFailure("delete attendance", mirrorErr, flatErr)
	case flatErr != nil:
		return fmt.Errorf("attendance %d: %w: %v", id, ErrPartialDelete, flatErr)
	case mirrorErr != nil:
		return fmt.Errorf("attendance %d: %w: %v", id, ErrPartialDelete, mirrorErr)
	}
	return nil
}
