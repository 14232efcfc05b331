package flatstore

import (
	"context"

	"github.com/rollcall/attendance/internal/types"
)

// Members reads the members collection.
func (s *Store) Members(ctx context.Context) ([]*types.Member, error) {
	var members []*types.Member
	if err := s.Read(ctx, CollectionMembers, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// WriteMembers replaces the members collection.
func (s *Store) WriteMembers(ctx context.Context, members []*types.Member) error {
	return s.Write(ctx, CollectionMembers, members)
}

// Attendance reads the attendance collection.
func (s *Store) Attendance(ctx context.Context) ([]*types.AttendanceRecord, error) {
	var records []*types.AttendanceRecord
	if err := s.Read(ctx, CollectionAttendance, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// WriteAttendance replaces the attendance collection.
func (s *Store) WriteAttendance(ctx context.Context, records []*types.AttendanceRecord) error {
	return s.Write(ctx, CollectionAttendance, records)
}

// Visitors reads the visitors collection.
func (s *Store) Visitors(ctx context.Context) ([]*types.Visitor, error) {
	var visitors []*types.Visitor
	if err := s.Read(ctx, CollectionVisitors, &visitors); err != nil {
		return nil, err
	}
	return visitors, nil
}

// WriteVisitors replaces the visitors collection.
func (s *Store) WriteVisitors(ctx context.Context, visitors []*types.Visitor) error {
	return s.Write(ctx, CollectionVisitors, visitors)
}

// NextMemberID returns max(id)+1, or 1 for an empty collection.
func NextMemberID(members []*types.Member) int64 {
	var max int64
	for _, m := range members {
		if m.ID > max {
			max = m.ID
		}
	}
	return max + 1
}

// NextAttendanceID returns max(id)+1, or 1 for an empty collection.
func NextAttendanceID(records []*types.AttendanceRecord) int64 {
	var max int64
	for _, r := range records {
		if r.ID > max {
			max = r.ID
		}
	}
	return max + 1
}
