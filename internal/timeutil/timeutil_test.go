package timeutil

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 μs"},
		{87 * time.Microsecond, "87 μs"},
		{150 * time.Millisecond, "150 ms"},
		{41 * time.Second, "41 sec"},
		{3*time.Minute + 12*time.Second, "3m 12s"},
		{2*time.Hour + 5*time.Minute + 9*time.Second, "2h 5m"},
		{50 * time.Hour, "2d 2h"},
		{-time.Second, "0 μs"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSinceUsec(t *testing.T) {
	start := Usec() - 2_000_000
	got := SinceUsec(start)
	if got < 2*time.Second || got > 3*time.Second {
		t.Errorf("SinceUsec = %v, want ~2s", got)
	}
}

func TestSpellTimeout(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{2 * time.Minute, "2 minutes"},
		{time.Minute, "1 minute"},
		{90 * time.Second, "90 seconds"},
		{time.Second, "1 second"},
		{1500 * time.Millisecond, "1 sec"},
	}
	for _, tt := range tests {
		if got := SpellTimeout(tt.in); got != tt.want {
			t.Errorf("SpellTimeout(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
