package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rollcall/attendance/internal/types"
)

const memberColumns = `id, first_name, last_name, category, registration_date, is_active, created_at, updated_at`

// MemberFilter configures ListMembers.
type MemberFilter struct {
	// IncludeInactive returns deactivated members too
	IncludeInactive bool
}

// CreateMember inserts m and returns the stored row. A zero m.ID lets the
// database generate one.
func (db *DB) CreateMember(ctx context.Context, m *types.Member) (*types.Member, error) {
	query := `
	INSERT INTO members (` + memberColumns + `)
	VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?)
	RETURNING ` + memberColumns

	row := db.conn.QueryRowContext(ctx, query,
		m.ID, m.FirstName, m.LastName, m.Category, m.RegistrationDate,
		m.IsActive, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	created, err := scanMember(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	return created, nil
}

// InsertMemberWithID inserts m keeping its id. Used by backfill.
func (db *DB) InsertMemberWithID(ctx context.Context, m *types.Member) error {
	query := `
	INSERT INTO members (` + memberColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		m.ID, m.FirstName, m.LastName, m.Category, m.RegistrationDate,
		m.IsActive, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert member %d: %w", m.ID, err)
	}
	return nil
}

// GetMember returns the member with id, or ErrNotFound.
func (db *DB) GetMember(ctx context.Context, id int64) (*types.Member, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member %d: %w", id, err)
	}
	return m, nil
}

// ListMembers returns members ordered by "last first" name.
func (db *DB) ListMembers(ctx context.Context, filter MemberFilter) ([]*types.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members`
	if !filter.IncludeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY last_name || ' ' || first_name, id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*types.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// UpdateMember overwrites every mutable field of m and returns the number of
// affected rows.
func (db *DB) UpdateMember(ctx context.Context, m *types.Member) (int64, error) {
	query := `
	UPDATE members SET
		first_name = ?, last_name = ?, category = ?, registration_date = ?,
		is_active = ?, updated_at = ?
	WHERE id = ?`

	res, err := db.conn.ExecContext(ctx, query,
		m.FirstName, m.LastName, m.Category, m.RegistrationDate,
		m.IsActive, formatTime(m.UpdatedAt), m.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update member %d: %w", m.ID, err)
	}
	return res.RowsAffected()
}

// DeleteMember removes the member and, by cascade, its attendance.
func (db *DB) DeleteMember(ctx context.Context, id int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete member %d: %w", id, err)
	}
	return res.RowsAffected()
}

func scanMember(s scanner) (*types.Member, error) {
	var m types.Member
	var createdAt, updatedAt string
	if err := s.Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.Category, &m.RegistrationDate,
		&m.IsActive, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}
