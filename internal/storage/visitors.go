package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/types"
)

// VisitorRepo is the coordinator's visitor repository.
type VisitorRepo struct {
	c *Coordinator
}

var _ Repository[types.Visitor, string, VisitorFilter] = (*VisitorRepo)(nil)

// Create stores a new visitor under a fresh UUID.
func (r *VisitorRepo) Create(ctx context.Context, v *types.Visitor) (*types.Visitor, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid visitor: %w", err)
	}
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionVisitors)
	if err != nil {
		return nil, err
	}
	defer unlock()

	visitors, err := c.flat.Visitors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read visitors: %w", err)
	}

	item := *v
	item.ID = uuid.NewString()
	item.VisitorName = item.DisplayName()
	now := c.timestamp()
	item.CreatedAt, item.UpdatedAt = now, now

	mirrorErr := ErrMirrorUnavailable
	if db := c.Mirror(); db != nil {
		if err := db.CreateVisitor(ctx, &item); err != nil {
			mirrorErr = err
			c.mirrorFailed("create visitor", err)
		} else {
			mirrorErr = nil
		}
	}

	visitors = append(visitors, &item)
	if err := c.flat.WriteVisitors(ctx, visitors); err != nil {
		if mirrorErr != nil {
			return nil, totalFailure("create visitor", mirrorErr, err)
		}
		c.logger.WithError(err).WithField("visitor_id", item.ID).Error("flat store rejected visitor create")
	}
	return &item, nil
}

// GetAll lists visitors newest date first, then by name.
func (r *VisitorRepo) GetAll(ctx context.Context, filter VisitorFilter) ([]*types.Visitor, error) {
	c := r.c
	if db := c.Mirror(); db != nil {
		visitors, err := db.ListVisitors(ctx, filter)
		if err == nil {
			return visitors, nil
		}
		c.mirrorFailed("list visitors", err)
	}

	visitors, err := c.flat.Visitors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read visitors: %w", err)
	}
	return filterVisitors(visitors, filter), nil
}

// FindByName returns the canonical visitor whose first and last name match,
// ignoring case. A visit on date wins over the same name on another date.
// An empty date matches the first visitor with that name.
func (r *VisitorRepo) FindByName(ctx context.Context, first, last, date string) (*types.Visitor, error) {
	visitors, err := r.c.flat.Visitors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read visitors: %w", err)
	}
	var fallback *types.Visitor
	for _, v := range visitors {
		if !v.SameName(first, last) {
			continue
		}
		if date == "" || v.SabbathDate == date {
			return v, nil
		}
		if fallback == nil {
			fallback = v
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("visitor %s %s: %w", first, last, ErrNotFound)
}

// Update replaces visitor id.
func (r *VisitorRepo) Update(ctx context.Context, id string, v *types.Visitor) (*types.Visitor, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid visitor: %w", err)
	}
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionVisitors)
	if err != nil {
		return nil, err
	}
	defer unlock()

	visitors, err := c.flat.Visitors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read visitors: %w", err)
	}
	idx := indexVisitor(visitors, id)
	if idx < 0 {
		return nil, fmt.Errorf("visitor %s: %w", id, ErrNotFound)
	}

	item := *visitors[idx]
	item.FirstName = v.FirstName
	item.LastName = v.LastName
	item.VisitorName = v.DisplayName()
	item.SabbathDate = v.SabbathDate
	item.Notes = v.Notes
	item.UpdatedAt = c.timestamp()

	mirrorErr := ErrMirrorUnavailable
	if db := c.Mirror(); db != nil {
		n, err := db.UpdateVisitor(ctx, &item)
		switch {
		case err != nil:
			mirrorErr = err
			c.mirrorFailed("update visitor", err)
		case n == 0:
			if err := db.CreateVisitor(ctx, &item); err != nil {
				mirrorErr = err
				c.mirrorFailed("update visitor", err)
			} else {
				mirrorErr = nil
			}
		default:
			mirrorErr = nil
		}
	}

	visitors[idx] = &item
	if err := c.flat.WriteVisitors(ctx, visitors); err != nil {
		if mirrorErr != nil {
			return nil, totalFailure("update visitor", mirrorErr, err)
		}
		c.logger.WithError(err).WithField("visitor_id", id).Error("flat store rejected visitor update")
	}
	return &item, nil
}

// Delete removes visitor id from every available store.
func (r *VisitorRepo) Delete(ctx context.Context, id string) error {
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionVisitors)
	if err != nil {
		return err
	}
	defer unlock()

	visitors, err := c.flat.Visitors(ctx)
	if err != nil {
		return fmt.Errorf("failed to read visitors: %w", err)
	}
	idx := indexVisitor(visitors, id)

	mirrorFound := false
	var mirrorErr error
	if db := c.Mirror(); db != nil {
		n, err := db.DeleteVisitor(ctx, id)
		if err != nil {
			mirrorErr = err
			c.mirrorFailed("delete visitor", err)
		}
		mirrorFound = n > 0
	}

	if idx < 0 {
		if mirrorErr != nil {
			return totalFailure("delete visitor", mirrorErr, ErrNotFound)
		}
		if !mirrorFound {
			return fmt.Errorf("visitor %s: %w", id, ErrNotFound)
		}
		return nil
	}

	visitors = append(visitors[:idx], visitors[idx+1:]...)
	flatErr := c.flat.WriteVisitors(ctx, visitors)
	switch {
	case flatErr != nil && (mirrorErr != nil || !mirrorFound):
		return totalFailure("delete visitor", mirrorErr, flatErr)
	case flatErr != nil:
		return fmt.Errorf("visitor %s: %w: %v", id, ErrPartialDelete, flatErr)
	case mirrorErr != nil:
		return fmt.Errorf("visitor %s: %w: %v", id, ErrPartialDelete, mirrorErr)
	}
	return nil
}
