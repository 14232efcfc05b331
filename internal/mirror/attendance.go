package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rollcall/attendance/internal/types"
)

const attendanceColumns = `id, member_id, sabbath_date, status, notes, created_at, updated_at`

// AttendanceFilter configures ListAttendance. The zero value lists every
// record, newest date first.
type AttendanceFilter struct {
	// Date restricts results to one sabbath date, ordered by id
	Date string
	// MemberID restricts results to one member (0 = all)
	MemberID int64
}

// CreateAttendance inserts rec and returns the stored row. A zero rec.ID lets
// the database generate one. A second record for the same (member, date)
// fails with a constraint error.
func (db *DB) CreateAttendance(ctx context.Context, rec *types.AttendanceRecord) (*types.AttendanceRecord, error) {
	query := `
	INSERT INTO attendance (` + attendanceColumns + `)
	VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?)
	RETURNING ` + attendanceColumns

	row := db.conn.QueryRowContext(ctx, query,
		rec.ID, rec.MemberID, rec.SabbathDate, string(rec.Status), rec.Notes,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	created, err := scanAttendance(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create attendance for %s: %w", rec.Key(), err)
	}
	return created, nil
}

// InsertAttendanceWithID inserts rec keeping its id. Used by backfill.
func (db *DB) InsertAttendanceWithID(ctx context.Context, rec *types.AttendanceRecord) error {
	query := `
	INSERT INTO attendance (` + attendanceColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		rec.ID, rec.MemberID, rec.SabbathDate, string(rec.Status), rec.Notes,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attendance %d: %w", rec.ID, err)
	}
	return nil
}

// UpsertAttendance writes the record for rec's (member, date) key, inserting
// or replacing status and notes, and returns the stored row. rec.ID is used
// only when inserting; zero lets the database generate one.
func (db *DB) UpsertAttendance(ctx context.Context, rec *types.AttendanceRecord) (*types.AttendanceRecord, error) {
	query := `
	INSERT INTO attendance (` + attendanceColumns + `)
	VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?)
	ON CONFLICT(member_id, sabbath_date) DO UPDATE SET
		status = excluded.status,
		notes = excluded.notes,
		updated_at = excluded.updated_at
	RETURNING ` + attendanceColumns

	row := db.conn.QueryRowContext(ctx, query,
		rec.ID, rec.MemberID, rec.SabbathDate, string(rec.Status), rec.Notes,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	stored, err := scanAttendance(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert attendance for %s: %w", rec.Key(), err)
	}
	return stored, nil
}

// GetAttendance returns the record with id, or ErrNotFound.
func (db *DB) GetAttendance(ctx context.Context, id int64) (*types.AttendanceRecord, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = ?`, id)
	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance %d: %w", id, err)
	}
	return rec, nil
}

// FindAttendance returns the record for (memberID, date), or ErrNotFound.
func (db *DB) FindAttendance(ctx context.Context, memberID int64, date string) (*types.AttendanceRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE member_id = ? AND sabbath_date = ?`,
		memberID, date,
	)
	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance %d@%s: %w", memberID, date, err)
	}
	return rec, nil
}

// ListAttendance returns records matching filter. With a date the results are
// ordered by id, otherwise by date descending then id.
func (db *DB) ListAttendance(ctx context.Context, filter AttendanceFilter) ([]*types.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE 1 = 1`
	var args []any

	if filter.Date != "" {
		query += ` AND sabbath_date = ?`
		args = append(args, filter.Date)
	}
	if filter.MemberID != 0 {
		query += ` AND member_id = ?`
		args = append(args, filter.MemberID)
	}
	if filter.Date != "" {
		query += ` ORDER BY id`
	} else {
		query += ` ORDER BY sabbath_date DESC, id`
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []*types.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance: %w", err)
	}
	return records, nil
}

// UpdateAttendance overwrites the record with rec.ID and returns the number
// of affected rows.
func (db *DB) UpdateAttendance(ctx context.Context, rec *types.AttendanceRecord) (int64, error) {
	query := `
	UPDATE attendance SET
		member_id = ?, sabbath_date = ?, status = ?, notes = ?, updated_at = ?
	WHERE id = ?`

	res, err := db.conn.ExecContext(ctx, query,
		rec.MemberID, rec.SabbathDate, string(rec.Status), rec.Notes,
		formatTime(rec.UpdatedAt), rec.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update attendance %d: %w", rec.ID, err)
	}
	return res.RowsAffected()
}

// DeleteAttendance removes the record with id.
func (db *DB) DeleteAttendance(ctx context.Context, id int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM attendance WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete attendance %d: %w", id, err)
	}
	return res.RowsAffected()
}

func scanAttendance(s scanner) (*types.AttendanceRecord, error) {
	var rec types.AttendanceRecord
	var status, createdAt, updatedAt string
	if err := s.Scan(
		&rec.ID, &rec.MemberID, &rec.SabbathDate, &status, &rec.Notes,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = types.Status(status)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}
