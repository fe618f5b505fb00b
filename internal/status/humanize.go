package status

import (
	"fmt"
	"time"
)

// HumanizeElapsed formats the time since an event using the coarsest unit
// pair: seconds, minutes, hours and minutes, or days and hours.
func HumanizeElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		return fmt.Sprintf("%d초", secs)
	}
	mins := secs / 60
	hours := mins / 60
	days := hours / 24
	if days > 0 {
		return fmt.Sprintf("%d일 %d시간", days, hours%24)
	}
	if hours > 0 {
		return fmt.Sprintf("%d시간 %d분", hours, mins%60)
	}
	return fmt.Sprintf("%d분", mins)
}

// HumanizeTotal formats a cumulative duration. Totals never roll over into
// days, unlike HumanizeElapsed.
func HumanizeTotal(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	hours := secs / 3600
	mins := (secs % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%d시간 %d분", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%d분", mins)
	}
	return fmt.Sprintf("%d초", secs)
}
