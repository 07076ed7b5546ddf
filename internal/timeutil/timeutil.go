// Package timeutil holds the microsecond clock and the human-readable
// duration format shared by status replies.
package timeutil

import (
	"fmt"
	"time"
)

// Usec returns the current wall-clock time in microseconds since the Unix epoch.
func Usec() int64 {
	return time.Now().UnixMicro()
}

// SinceUsec returns the time elapsed since a microsecond timestamp.
func SinceUsec(us int64) time.Duration {
	return time.Duration(Usec()-us) * time.Microsecond
}

// FormatDuration renders d using its two most significant units, e.g.
// "2h 5m", "3m 12s", "41 sec", "150 ms" or "87 μs".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d >= 24*time.Hour:
		days := d / (24 * time.Hour)
		hours := (d % (24 * time.Hour)) / time.Hour
		return fmt.Sprintf("%dd %dh", days, hours)
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", d/time.Minute, (d%time.Minute)/time.Second)
	case d >= time.Second:
		return fmt.Sprintf("%d sec", d/time.Second)
	case d >= time.Millisecond:
		return fmt.Sprintf("%d ms", d/time.Millisecond)
	default:
		return fmt.Sprintf("%d μs", d/time.Microsecond)
	}
}

// SpellTimeout renders a limit for prose such as "failed to finish within
// 2 minutes". Whole minutes and whole seconds are spelled out; anything else
// falls back to FormatDuration.
func SpellTimeout(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return plural(int64(d/time.Second), "second")
	default:
		return FormatDuration(d)
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
