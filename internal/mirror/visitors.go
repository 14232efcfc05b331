package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rollcall/attendance/internal/types"
)

const visitorColumns = `id, first_name, last_name, visitor_name, sabbath_date, notes, created_at, updated_at`

// VisitorFilter configures ListVisitors.
type VisitorFilter struct {
	// Date restricts results to one sabbath date
	Date string
}

// CreateVisitor inserts v. Visitor ids are assigned by the caller.
func (db *DB) CreateVisitor(ctx context.Context, v *types.Visitor) error {
	if v.ID == "" {
		return fmt.Errorf("visitor id is required")
	}
	query := `
	INSERT INTO visitors (` + visitorColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		v.ID, v.FirstName, v.LastName, v.DisplayName(), v.SabbathDate, v.Notes,
		formatTime(v.CreatedAt), formatTime(v.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create visitor %s: %w", v.ID, err)
	}
	return nil
}

// GetVisitor returns the visitor with id, or ErrNotFound.
func (db *DB) GetVisitor(ctx context.Context, id string) (*types.Visitor, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+visitorColumns+` FROM visitors WHERE id = ?`, id)
	v, err := scanVisitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visitor %s: %w", id, err)
	}
	return v, nil
}

// ListVisitors returns visitors newest date first, then by name.
func (db *DB) ListVisitors(ctx context.Context, filter VisitorFilter) ([]*types.Visitor, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitors`
	var args []any
	if filter.Date != "" {
		query += ` WHERE sabbath_date = ?`
		args = append(args, filter.Date)
	}
	query += ` ORDER BY sabbath_date DESC, visitor_name, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visitors: %w", err)
	}
	defer rows.Close()

	var visitors []*types.Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visitor: %w", err)
		}
		visitors = append(visitors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visitors: %w", err)
	}
	return visitors, nil
}

// UpdateVisitor overwrites the visitor with v.ID.
func (db *DB) UpdateVisitor(ctx context.Context, v *types.Visitor) (int64, error) {
	query := `
	UPDATE visitors SET
		first_name = ?, last_name = ?, visitor_name = ?, sabbath_date = ?,
		notes = ?, updated_at = ?
	WHERE id = ?`

	res, err := db.conn.ExecContext(ctx, query,
		v.FirstName, v.LastName, v.DisplayName(), v.SabbathDate, v.Notes,
		formatTime(v.UpdatedAt), v.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update visitor %s: %w", v.ID, err)
	}
	return res.RowsAffected()
}

// DeleteVisitor removes the visitor with id.
func (db *DB) DeleteVisitor(ctx context.Context, id string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM visitors WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete visitor %s: %w", id, err)
	}
	return res.RowsAffected()
}

func scanVisitor(s scanner) (*types.Visitor, error) {
	var v types.Visitor
	var createdAt, updatedAt string
	if err := s.Scan(
		&v.ID, &v.FirstName, &v.LastName, &v.VisitorName, &v.SabbathDate, &v.Notes,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}
