package cli

import (
	"fmt"
	"strings"
	"time"
)

// FormatDateTime formats a datetime in local time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02-Jan-2006 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatMembers joins account ids, eliding the middle of long lists.
func FormatMembers(ids []string, max int) string {
	if len(ids) <= max || max < 2 {
		return strings.Join(ids, ", ")
	}
	head := ids[:max-1]
	return fmt.Sprintf("%s, ... +%d, %s", strings.Join(head, ", "), len(ids)-max, ids[len(ids)-1])
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
