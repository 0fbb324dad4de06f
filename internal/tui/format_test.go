package tui

import (
	"testing"
	"time"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{42 * time.Second, "42s"},
		{5*time.Minute + 10*time.Second, "5m"},
		{3 * time.Hour, "3h"},
		{47 * time.Hour, "47h"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(95 * time.Second); got != "1m35s" {
		t.Errorf("formatDuration = %q", got)
	}
	if got := formatDuration(26*time.Hour + 5*time.Minute); got != "26h5m" {
		t.Errorf("formatDuration = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncateStr("Duplicate Responses", 10); got != "Duplicate." {
		t.Errorf("truncateStr = %q", got)
	}
	if got := truncateStr("abc", 2); got != "ab" {
		t.Errorf("truncateStr = %q", got)
	}
	if got := truncateID("a1b2c3d4e5f6a7b8", 8); got != "a1b2c3d4" {
		t.Errorf("truncateID = %q", got)
	}
}
