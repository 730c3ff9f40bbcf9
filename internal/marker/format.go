package marker

import (
	"fmt"
	"math"
	"time"

	"nuha.dev/ravevision/internal/util"
)

const UnknownTime = "Unknown time"

// FormatDistance renders meters below 1km and kilometers with one decimal
// above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int64(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

// ParseTimestamp accepts the ISO-8601 forms written by clients.
func ParseTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, util.TimeFormat, "2006-01-02T15:04:05"} {
		t, err := time.Parse(layout, ts)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FormatLastSeen describes how long ago ts was relative to now.
func FormatLastSeen(ts string, now time.Time) string {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return UnknownTime
	}
	mins := floorDiv(now.Sub(t).Milliseconds(), 60000)
	hours := floorDiv(mins, 60)
	days := floorDiv(hours, 24)
	switch {
	case mins < 1:
		return "Just now"
	case mins == 1:
		return "1 minute ago"
	case mins < 60:
		return fmt.Sprintf("%d minutes ago", mins)
	case hours == 1:
		return "1 hour ago"
	case hours < 24:
		return fmt.Sprintf("%d hours ago", hours)
	case days == 1:
		return "Yesterday"
	}
	return fmt.Sprintf("%d days ago", days)
}
