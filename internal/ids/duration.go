package ids

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration accepts a compound duration string such as "1h30m" or
// "500ms", plus the sentinel values accepted by ParseByteSize ("0",
// "unlimited", "none") which map to zero (no expiry).
func ParseDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	if lower == "0" || lower == "unlimited" || lower == "none" || lower == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("ids: invalid duration %q: %w", s, err)
	}
	return d, nil
}

// FormatDuration renders a duration using compound units (matching the
// compact style ParseDuration accepts), or "unlimited" for zero.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "unlimited"
	}
	return d.String()
}

// MicrosNow returns the current wall-clock time as microseconds since the
// Unix epoch, the unit every timestamp in the data model is stored in.
func MicrosNow(now time.Time) uint64 {
	return uint64(now.UnixMicro())
}

// FormatMicros is a debugging helper that renders a microsecond timestamp.
func FormatMicros(micros uint64) string {
	return strconv.FormatUint(micros, 10)
}
