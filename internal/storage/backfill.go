package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/mirror"
	"github.com/rollcall/attendance/internal/types"
)

// BackfillOptions configures BackfillMirror.
type BackfillOptions struct {
	DryRun bool // Count what would be copied without writing
}

// BackfillResult contains statistics about a backfill.
type BackfillResult struct {
	MembersCopied    int
	AttendanceCopied int
	VisitorsCopied   int
	Errors           []string
}

// Copied is the total number of records copied.
func (r *BackfillResult) Copied() int {
	return r.MembersCopied + r.AttendanceCopied + r.VisitorsCopied
}

// BackfillMirror copies canonical records the mirror does not have into it,
// keeping their ids. Members go first so attendance foreign keys resolve.
// Per-record failures are collected in Errors and do not stop the run.
func (c *Coordinator) BackfillMirror(ctx context.Context, opts BackfillOptions) (*BackfillResult, error) {
	db := c.Mirror()
	if db == nil {
		return nil, ErrMirrorUnavailable
	}

	unlock, err := c.lock(ctx, flatstore.CollectionMembers, flatstore.CollectionAttendance, flatstore.CollectionVisitors)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &BackfillResult{}
	log := c.logger.WithField("op", "backfill")

	members, err := c.flat.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}
	for _, m := range members {
		if _, err := db.GetMember(ctx, m.ID); err == nil {
			continue
		} else if !errors.Is(err, mirror.ErrNotFound) {
			return result, fmt.Errorf("failed to check member %d: %w", m.ID, err)
		}
		if !opts.DryRun {
			if err := db.InsertMemberWithID(ctx, m); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
		}
		result.MembersCopied++
	}

	records, err := c.flat.Attendance(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to read attendance: %w", err)
	}
	for _, rec := range records {
		if _, err := db.FindAttendance(ctx, rec.MemberID, rec.SabbathDate); err == nil {
			continue
		} else if !errors.Is(err, mirror.ErrNotFound) {
			return result, fmt.Errorf("failed to check attendance %s: %w", rec.Key(), err)
		}
		if !opts.DryRun {
			if err := db.InsertAttendanceWithID(ctx, rec); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
		}
		result.AttendanceCopied++
	}

	visitors, err := c.flat.Visitors(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to read visitors: %w", err)
	}
	for _, v := range visitors {
		if _, err := db.GetVisitor(ctx, v.ID); err == nil {
			continue
		} else if !errors.Is(err, mirror.ErrNotFound) {
			return result, fmt.Errorf("failed to check visitor %s: %w", v.ID, err)
		}
		if !opts.DryRun {
			if err := db.CreateVisitor(ctx, v); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
		}
		result.VisitorsCopied++
	}

	log.WithField("copied", result.Copied()).WithField("errors", len(result.Errors)).Info("backfill complete")
	return result, nil
}

// ExportOptions configures ExportMirror.
type ExportOptions struct {
	Backup bool // Keep a timestamped copy of the canonical document first
}

// ExportResult contains statistics about an export.
type ExportResult struct {
	Records       int
	BackupCreated string
}

// ExportMirror rewrites the canonical attendance collection from the mirror.
func (c *Coordinator) ExportMirror(ctx context.Context, opts ExportOptions) (*ExportResult, error) {
	db := c.Mirror()
	if db == nil {
		return nil, ErrMirrorUnavailable
	}

	unlock, err := c.lock(ctx, flatstore.CollectionAttendance)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := db.ListAttendance(ctx, AttendanceFilter{})
	if err != nil {
		c.mirrorFailed("export attendance", err)
		return nil, fmt.Errorf("failed to read mirror attendance: %w", err)
	}
	if records == nil {
		records = []*types.AttendanceRecord{}
	}

	result := &ExportResult{Records: len(records)}
	if opts.Backup {
		path := c.flat.Path(flatstore.CollectionAttendance)
		data, err := os.ReadFile(path) // #nosec G304 - data dir path
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read attendance for backup: %w", err)
		}
		if err == nil {
			backup := fmt.Sprintf("%s.backup-%s", path, c.now().UTC().Format("20060102-150405"))
			if err := os.WriteFile(backup, data, 0600); err != nil {
				return nil, fmt.Errorf("failed to create backup: %w", err)
			}
			result.BackupCreated = backup
		}
	}

	if err := c.flat.WriteAttendance(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to write attendance: %w", err)
	}
	c.logger.WithField("records", len(records)).Info("exported mirror attendance to flat store")
	return result, nil
}
