package presentation

import (
	"fmt"
	"time"
)

// Short abbreviates a UUID for table display.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Truncate cuts a string for single-line table cells.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// orDash renders an optional string cell.
func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// numOrDash renders an optional numeric cell.
func numOrDash(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}

// FormatTokens renders a token count compactly (1234 -> "1.2k").
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatAge renders how long ago a millisecond timestamp was.
func FormatAge(nowMS, thenMS int64) string {
	if thenMS <= 0 || nowMS < thenMS {
		return "-"
	}
	return FormatDuration(time.Duration(nowMS-thenMS)*time.Millisecond) + " ago"
}

// FormatDuration formats a duration in human-readable form (e.g., "2m30s")
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		if seconds > 0 {
			return fmt.Sprintf("%dm%ds", minutes, seconds)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if minutes > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	return fmt.Sprintf("%dh", hours)
}

// FormatClock formats a millisecond timestamp as local wall-clock time.
func FormatClock(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("15:04:05")
}
