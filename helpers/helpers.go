package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats duration into human-readable format.
//
// Formatting rules:
//   - Nanoseconds: whole number, no decimals (e.g., "123ns")
//   - Microseconds: whole number, no decimals (e.g., "456µs")
//   - Milliseconds: up to 3 decimal places (e.g., "123.456ms")
//   - Seconds: up to 2 decimal places (e.g., "45.67s")
//   - Minutes+: compound format (e.g., "3m 45.67s", "2h 30m 15s")
//   - Days+: compound format (e.g., "5d 12h 30m", "2y 3mo 15d")
func FormatDuration(d time.Duration) string {
	// Handle negative durations
	if d < 0 {
		return "-" + FormatDuration(-d)
	}

	// Handle zero
	if d == 0 {
		return "0s"
	}

	// Nanoseconds (< 1µs): whole number
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}

	// Microseconds (< 1ms): whole number
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}

	// Milliseconds (< 1s): up to 3 decimal places
	if d < time.Second {
		ms := float64(d.Nanoseconds()) / float64(time.Millisecond)
		return formatFloat(ms, 3) + "ms"
	}

	// Seconds (< 1m): up to 2 decimal places
	if d < time.Minute {
		secs := float64(d.Nanoseconds()) / float64(time.Second)
		return formatFloat(secs, 2) + "s"
	}

	// Minutes (< 1h): Xm + seconds with 2 decimal places
	if d < time.Hour {
		mins := int(d.Minutes())
		remainingSecs := float64(d-time.Duration(mins)*time.Minute) / float64(time.Second)
		if remainingSecs < 0.01 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ss", mins, formatFloat(remainingSecs, 2))
	}

	// Hours (< 1 day): Xh Ym Zs (whole seconds)
	const day = 24 * time.Hour
	if d < day {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		secs := int(d.Seconds()) % 60
		if secs == 0 && mins == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		if secs == 0 {
			return fmt.Sprintf("%dh %dm", hours, mins)
		}
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}

	// Days (< 1 year): Xd Yh Zm (no seconds)
	const year = 365 * day
	const month = 30 * day // approximate
	if d < year {
		days := int(d / day)
		remaining := d % day
		hours := int(remaining.Hours())
		mins := int(remaining.Minutes()) % 60
		if hours == 0 && mins == 0 {
			return fmt.Sprintf("%dd", days)
		}
		if mins == 0 {
			return fmt.Sprintf("%dd %dh", days, hours)
		}
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}

	// Years: Xy Xmo Xd (approximate months as 30 days)
	years := int(d / year)
	remaining := d % year
	months := int(remaining / month)
	days := int((remaining % month) / day)
	if months == 0 && days == 0 {
		return fmt.Sprintf("%dy", years)
	}
	if days == 0 {
		return fmt.Sprintf("%dy %dmo", years, months)
	}
	return fmt.Sprintf("%dy %dmo %dd", years, months, days)
}

// formatFloat formats a float with up to maxDecimals, trimming trailing zeros.
func formatFloat(value float64, maxDecimals int) string {
	format := fmt.Sprintf("%%.%df", maxDecimals)
	s := fmt.Sprintf(format, value)

	// Trim trailing zeros after decimal point
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// TicksToSeconds converts internal trace ticks (1/10000 centisecond) to
// floating-point seconds.
func TicksToSeconds(ticks int64) float64 {
	return float64(ticks) / 1000000.0
}

// TicksToDuration converts internal trace ticks to a time.Duration.
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * time.Microsecond
}

// FormatSeconds formats internal trace ticks as seconds with two decimal
// places. Nonzero values that would round to 0.00 display as 0.01 so real
// activity is never shown as zero.
func FormatSeconds(ticks int64) string {
	if ticks < 0 {
		return "-" + FormatSeconds(-ticks)
	}
	if ticks > 0 && ticks < 10000 {
		return "0.01"
	}
	return fmt.Sprintf("%.2f", TicksToSeconds(ticks))
}

// FormatNumber formats a number with commas for readability
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	s := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

// FormatCount formats a large count with decimal K/M/G/T scaling.
// Counts below 10000 print unscaled.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	switch {
	case n < 10000:
		return fmt.Sprintf("%d", n)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000.0)
	case n < 1000000000:
		return fmt.Sprintf("%.1fM", float64(n)/1000000.0)
	case n < 1000000000000:
		return fmt.Sprintf("%.1fG", float64(n)/1000000000.0)
	default:
		return fmt.Sprintf("%.1fT", float64(n)/1000000000000.0)
	}
}

// FormatPercent formats a percentage with specified precision
func FormatPercent(value float64, precision int) string {
	format := fmt.Sprintf("%%.%df%%%%", precision)
	return fmt.Sprintf(format, value)
}

// PercentOf returns part as a percentage of whole, 0 when whole is 0.
func PercentOf(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// GetDirSize returns the total size of all files in a directory
func GetDirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file or directory exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
