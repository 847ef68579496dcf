package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRoomID builds a unique, human-scannable room identifier, e.g.
// "call_ab12cd34_1737171717" or "transfer_9f8e7d6c_1737171788".
func GenerateRoomID(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "room"
	}
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d", prefix, short, now.Unix())
}

// FormatDuration renders seconds as a compact human-readable duration.
// 65 -> "1m 5s", 3700 -> "1h 1m".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}
