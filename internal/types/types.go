package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the ISO calendar-date layout used for every SabbathDate.
const DateLayout = "2006-01-02"

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Status is the attendance status of a member on a given date.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusOther   Status = "other"

	// StatusNotRecorded only appears in external rows. It never reaches a
	// store.
	StatusNotRecorded Status = "not recorded"
)

// Valid reports whether the status may be persisted.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusOther:
		return true
	}
	return false
}

// ParseStatus lower-cases and trims an external status value. It does not
// validate the result.
func ParseStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// Member is a roster entry.
type Member struct {
	ID               int64     `json:"id" yaml:"id"`
	FirstName        string    `json:"firstName" yaml:"firstName"`
	LastName         string    `json:"lastName" yaml:"lastName"`
	Category         string    `json:"category" yaml:"category"`
	RegistrationDate string    `json:"registrationDate" yaml:"registrationDate"`
	IsActive         bool      `json:"isActive" yaml:"isActive"`
	CreatedAt        time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Validate checks the fields required before a member is stored.
func (m *Member) Validate() error {
	if strings.TrimSpace(m.FirstName) == "" {
		return fmt.Errorf("firstName is required")
	}
	if strings.TrimSpace(m.LastName) == "" {
		return fmt.Errorf("lastName is required")
	}
	if strings.TrimSpace(m.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if m.RegistrationDate == "" {
		return fmt.Errorf("registrationDate is required")
	}
	return nil
}

// SortKey is the "last first" key both stores order members by.
func (m *Member) SortKey() string {
	return m.LastName + " " + m.FirstName
}

// AttendanceRecord is the status of one member on one date.
type AttendanceRecord struct {
	ID          int64     `json:"id" yaml:"id"`
	MemberID    int64     `json:"memberId" yaml:"memberId"`
	SabbathDate string    `json:"sabbathDate" yaml:"sabbathDate"`
	Status      Status    `json:"status" yaml:"status"`
	Notes       string    `json:"notes" yaml:"notes"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Validate checks the record's key and status.
func (a *AttendanceRecord) Validate() error {
	if a.MemberID <= 0 {
		return fmt.Errorf("memberId must be positive (got %d)", a.MemberID)
	}
	if !IsISODate(a.SabbathDate) {
		return fmt.Errorf("sabbathDate must be YYYY-MM-DD (got %q)", a.SabbathDate)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("invalid status %q", a.Status)
	}
	return nil
}

// Key returns the (memberId, sabbathDate) uniqueness key.
func (a *AttendanceRecord) Key() AttendanceKey {
	return AttendanceKey{MemberID: a.MemberID, SabbathDate: a.SabbathDate}
}

// AttendanceKey identifies at most one AttendanceRecord.
type AttendanceKey struct {
	MemberID    int64
	SabbathDate string
}

func (k AttendanceKey) String() string {
	return fmt.Sprintf("%d@%s", k.MemberID, k.SabbathDate)
}

// Visitor is a guest. Visitors carry no uniqueness beyond their id.
type Visitor struct {
	ID          string    `json:"id" yaml:"id"`
	FirstName   string    `json:"firstName,omitempty" yaml:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty" yaml:"lastName,omitempty"`
	VisitorName string    `json:"visitorName" yaml:"visitorName"`
	SabbathDate string    `json:"sabbathDate" yaml:"sabbathDate"`
	Notes       string    `json:"notes" yaml:"notes"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// DisplayName returns VisitorName, falling back to "First Last".
func (v *Visitor) DisplayName() string {
	if v.VisitorName != "" {
		return v.VisitorName
	}
	return strings.TrimSpace(v.FirstName + " " + v.LastName)
}

// Names returns the visitor's first and last name. Visitors stored with only
// a combined name are split on the first space.
func (v *Visitor) Names() (string, string) {
	if v.FirstName != "" || v.LastName != "" {
		return v.FirstName, v.LastName
	}
	first, last, _ := strings.Cut(strings.TrimSpace(v.VisitorName), " ")
	return first, strings.TrimSpace(last)
}

// SameName reports whether the visitor matches first+last, ignoring case.
func (v *Visitor) SameName(first, last string) bool {
	vf, vl := v.Names()
	return strings.EqualFold(strings.TrimSpace(vf), strings.TrimSpace(first)) &&
		strings.EqualFold(strings.TrimSpace(vl), strings.TrimSpace(last))
}

// Validate checks the visitor's name and date.
func (v *Visitor) Validate() error {
	if v.DisplayName() == "" {
		return fmt.Errorf("visitor name is required")
	}
	if !IsISODate(v.SabbathDate) {
		return fmt.Errorf("sabbathDate must be YYYY-MM-DD (got %q)", v.SabbathDate)
	}
	return nil
}

// IsISODate reports whether s is a real calendar date in YYYY-MM-DD form.
func IsISODate(s string) bool {
	if !isoDatePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
