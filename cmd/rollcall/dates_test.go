package main

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	// Wednesday
	now := time.Date(2025, 1, 8, 10, 0, 0, 0, time.Local)

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"2025-01-04", "2025-01-04", false},
		{"1/4", "2025-01-04", false},
		{"12/28/2024", "2024-12-28", false},
		{"yesterday", "2025-01-07", false},
		{"last saturday", "2025-01-04", false},
		{"gibberish words", "", true},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.raw, now)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDate(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDate(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
