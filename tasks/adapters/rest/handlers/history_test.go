package handlers

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		endOfDay bool
		want     time.Time
		ok       bool
	}{
		{"2024-05-01", false, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-05-01", true, time.Date(2024, 5, 1, 23, 59, 59, 999_000_000, time.UTC), true},
		{"2024-05-01T10:00:00+02:00", true, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), true},
		{"01/05/2024", false, time.Time{}, false},
		{"", false, time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := parseDate(tt.in, tt.endOfDay)
		if ok != tt.ok {
			t.Fatalf("parseDate(%q): expected ok=%v, got %v", tt.in, tt.ok, ok)
		}
		if ok && !got.Equal(tt.want) {
			t.Fatalf("parseDate(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestParseStatusAndType(t *testing.T) {
	t.Parallel()

	if st, ok := parseStatus(" In_Progress "); !ok || st != "in_progress" {
		t.Fatalf("unexpected status %q, %v", st, ok)
	}
	if _, ok := parseStatus("archived"); ok {
		t.Fatalf("archived is not a task status")
	}
	if tt, ok := parseType(""); !ok || tt != "specific" {
		t.Fatalf("empty type must default to specific, got %q", tt)
	}
	if _, ok := parseType("team"); ok {
		t.Fatalf("team is not a task type")
	}
}
