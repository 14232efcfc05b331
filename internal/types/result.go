package types

import "fmt"

// SyncResult summarizes one reconciliation run. It is the contract surfaced
// to watchers, the CLI and the notification record.
type SyncResult struct {
	Created      int      `json:"created" yaml:"created"`
	Updated      int      `json:"updated" yaml:"updated"`
	Errors       int      `json:"errors" yaml:"errors"`
	ErrorDetails []string `json:"errorDetails" yaml:"errorDetails"`
}

// NewSyncResult returns an empty result whose ErrorDetails serializes as []
// rather than null.
func NewSyncResult() SyncResult {
	return SyncResult{ErrorDetails: []string{}}
}

// AddError records one per-row failure.
func (r *SyncResult) AddError(format string, args ...any) {
	r.Errors++
	r.ErrorDetails = append(r.ErrorDetails, fmt.Sprintf(format, args...))
}

// Merge adds other's counters and details to r, preserving order.
func (r *SyncResult) Merge(other SyncResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Errors += other.Errors
	r.ErrorDetails = append(r.ErrorDetails, other.ErrorDetails...)
}

// Changed reports whether the run created or updated anything.
func (r SyncResult) Changed() bool {
	return r.Created > 0 || r.Updated > 0
}

func (r SyncResult) String() string {
	return fmt.Sprintf("%d created, %d updated, %d errors", r.Created, r.Updated, r.Errors)
}

// AttendanceStats counts statuses for one date or for all dates.
type AttendanceStats struct {
	Date    string `json:"date" yaml:"date"`
	Total   int    `json:"total" yaml:"total"`
	Present int    `json:"present" yaml:"present"`
	Absent  int    `json:"absent" yaml:"absent"`
	Other   int    `json:"other" yaml:"other"`
}

// Percent returns n as a rounded percentage of Total, or 0 when empty.
func (s AttendanceStats) Percent(n int) int {
	if s.Total == 0 {
		return 0
	}
	return (n*100 + s.Total/2) / s.Total
}

// ComputeStats tallies records. date is informational ("all" when empty).
func ComputeStats(records []*AttendanceRecord, date string) AttendanceStats {
	if date == "" {
		date = "all"
	}
	stats := AttendanceStats{Date: date, Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			stats.Present++
		case StatusAbsent:
			stats.Absent++
		case StatusOther:
			stats.Other++
		}
	}
	return stats
}
