package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rollcall/attendance/internal/flatstore"
	"github.com/rollcall/attendance/internal/mirror"
	"github.com/rollcall/attendance/internal/types"
)

// MemberRepo is the coordinator's member repository.
type MemberRepo struct {
	c *Coordinator
}

var _ Repository[types.Member, int64, MemberFilter] = (*MemberRepo)(nil)

// Create stores a new member in both stores and returns it with its id.
func (r *MemberRepo) Create(ctx context.Context, m *types.Member) (*types.Member, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid member: %w", err)
	}
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionMembers)
	if err != nil {
		return nil, err
	}
	defer unlock()

	members, err := c.flat.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}

	item := *m
	item.ID = flatstore.NextMemberID(members)
	now := c.timestamp()
	item.CreatedAt, item.UpdatedAt = now, now

	var mirrorErr error
	if db := c.Mirror(); db != nil {
		stored, err := db.CreateMember(ctx, &item)
		if err != nil {
			mirrorErr = err
			c.mirrorFailed("create member", err)
		} else {
			item = *stored
		}
	} else {
		mirrorErr = ErrMirrorUnavailable
	}

	members = append(members, &item)
	if err := c.flat.WriteMembers(ctx, members); err != nil {
		if mirrorErr != nil {
			return nil, totalFailure("create member", mirrorErr, err)
		}
		c.logger.WithError(err).WithField("member_id", item.ID).Error("flat store rejected member create")
	}

	c.logger.WithField("member_id", item.ID).Debug("member created")
	return &item, nil
}

// GetAll lists members ordered by "last first" name.
func (r *MemberRepo) GetAll(ctx context.Context, filter MemberFilter) ([]*types.Member, error) {
	c := r.c
	if db := c.Mirror(); db != nil {
		members, err := db.ListMembers(ctx, filter)
		if err == nil {
			return members, nil
		}
		c.mirrorFailed("list members", err)
	}

	members, err := c.flat.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}
	return filterMembers(members, filter), nil
}

// Get returns one member from the canonical store.
func (r *MemberRepo) Get(ctx context.Context, id int64) (*types.Member, error) {
	members, err := r.c.flat.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}
	if i := indexMember(members, id); i >= 0 {
		return members[i], nil
	}
	return nil, fmt.Errorf("member %d: %w", id, ErrNotFound)
}

// Update replaces the mutable fields of member id.
func (r *MemberRepo) Update(ctx context.Context, id int64, m *types.Member) (*types.Member, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid member: %w", err)
	}
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionMembers)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.updateLocked(ctx, id, func(existing *types.Member) {
		existing.FirstName = m.FirstName
		existing.LastName = m.LastName
		existing.Category = m.Category
		existing.RegistrationDate = m.RegistrationDate
		existing.IsActive = m.IsActive
	})
}

// Deactivate marks member id inactive. It is the soft alternative to Delete.
func (r *MemberRepo) Deactivate(ctx context.Context, id int64) (*types.Member, error) {
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionMembers)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.updateLocked(ctx, id, func(existing *types.Member) {
		existing.IsActive = false
	})
}

func (r *MemberRepo) updateLocked(ctx context.Context, id int64, apply func(*types.Member)) (*types.Member, error) {
	c := r.c
	members, err := c.flat.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}

	var item types.Member
	idx := indexMember(members, id)
	if idx >= 0 {
		item = *members[idx]
	} else if db := c.Mirror(); db != nil {
		// The canonical copy is missing; the mirror may still hold it.
		stored, err := db.GetMember(ctx, id)
		if err != nil {
			if errors.Is(err, mirror.ErrNotFound) {
				return nil, fmt.Errorf("member %d: %w", id, ErrNotFound)
			}
			c.mirrorFailed("get member", err)
			return nil, fmt.Errorf("member %d: %w", id, ErrNotFound)
		}
		item = *stored
	} else {
		return nil, fmt.Errorf("member %d: %w", id, ErrNotFound)
	}

	apply(&item)
	item.ID = id
	item.UpdatedAt = c.timestamp()

	mirrorAccepted := false
	mirrorErr := ErrMirrorUnavailable
	if db := c.Mirror(); db != nil {
		n, err := db.UpdateMember(ctx, &item)
		switch {
		case err != nil:
			mirrorErr = err
			c.mirrorFailed("update member", err)
		case n == 0:
			// Canonical leads; bring the mirror up to date.
			if _, err := db.CreateMember(ctx, &item); err != nil {
				mirrorErr = err
				c.mirrorFailed("update member", err)
			} else {
				mirrorAccepted = true
			}
		default:
			mirrorAccepted = true
		}
	}

	if idx < 0 {
		// Mirror-only record; nothing to write canonically.
		if !mirrorAccepted {
			return nil, totalFailure("update member", mirrorErr, ErrNotFound)
		}
		return &item, nil
	}

	members[idx] = &item
	if err := c.flat.WriteMembers(ctx, members); err != nil {
		if !mirrorAccepted {
			return nil, totalFailure("update member", mirrorErr, err)
		}
		c.logger.WithError(err).WithField("member_id", id).Error("flat store rejected member update")
	}
	return &item, nil
}

// Delete hard-deletes member id and its attendance from every available
// store. A delete that reaches only some stores returns ErrPartialDelete.
func (r *MemberRepo) Delete(ctx context.Context, id int64) error {
	c := r.c
	unlock, err := c.lock(ctx, flatstore.CollectionMembers, flatstore.CollectionAttendance)
	if err != nil {
		return err
	}
	defer unlock()

	members, err := c.flat.Members(ctx)
	if err != nil {
		return fmt.Errorf("failed to read members: %w", err)
	}
	idx := indexMember(members, id)

	mirrorFound := false
	var mirrorErr error
	if db := c.Mirror(); db != nil {
		n, err := db.DeleteMember(ctx, id)
		if err != nil {
			mirrorErr = err
			c.mirrorFailed("delete member", err)
		}
		mirrorFound = n > 0
	}

	if idx < 0 {
		if mirrorErr != nil {
			return totalFailure("delete member", mirrorErr, ErrNotFound)
		}
		if !mirrorFound {
			return fmt.Errorf("member %d: %w", id, ErrNotFound)
		}
		return nil
	}

	members = append(members[:idx], members[idx+1:]...)
	flatErr := c.flat.WriteMembers(ctx, members)
	if flatErr == nil {
		flatErr = r.deleteFlatAttendance(ctx, id)
	}

	switch {
	case flatErr != nil && (mirrorErr != nil || !mirrorFound):
		return totalFailure("delete member", mirrorErr, flatErr)
	case flatErr != nil:
		return fmt.Errorf("member %d: %w: %v", id, ErrPartialDelete, flatErr)
	case mirrorErr != nil:
		return fmt.Errorf("member %d: %w: %v", id, ErrPartialDelete, mirrorErr)
	}
	c.logger.WithField("member_id", id).Info("member deleted")
	return nil
}

// deleteFlatAttendance removes the member's attendance from the canonical
// store, matching the mirror's cascade. Caller holds the attendance lock.
func (r *MemberRepo) deleteFlatAttendance(ctx context.Context, memberID int64) error {
	records, err := r.c.flat.Attendance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read attendance: %w", err)
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.MemberID != memberID {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	return r.c.flat.WriteAttendance(ctx, kept)
}
