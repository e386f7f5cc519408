package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a position in the source video with millisecond precision.
type Timestamp int64

// timestampPattern accepts H:MM:SS, HH:MM:SS and HH:MM:SS.mmm with either
// ',' or '.' as the decimal separator.
var timestampPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})(?:[.,](\d{1,3}))?$`)

// ParseTimestamp parses a single timestamp string.
func ParseTimestamp(s string) (Timestamp, error) {
	m := timestampPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("timestamp %q has out-of-range minutes or seconds", s)
	}

	millis := 0
	if m[4] != "" {
		// ".5" means 500ms, so pad the fraction on the right.
		frac := m[4] + strings.Repeat("0", 3-len(m[4]))
		millis, _ = strconv.Atoi(frac)
	}

	total := int64(hours)*3600_000 + int64(minutes)*60_000 + int64(seconds)*1000 + int64(millis)
	return Timestamp(total), nil
}

// ParseTimeRange parses a "start-end" pair of timestamps.
func ParseTimeRange(s string) (Timestamp, Timestamp, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed time range %q", s)
	}

	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// String renders the canonical "HH:MM:SS,mmm" form.
func (t Timestamp) String() string {
	ms := int64(t)
	hours := ms / 3600_000
	ms -= hours * 3600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms)
}

// FileSafe renders a form usable inside artifact filenames.
func (t Timestamp) FileSafe() string {
	return strings.NewReplacer(":", "_", ",", "_").Replace(t.String())
}

// Duration converts the timestamp to a time.Duration offset.
func (t Timestamp) Duration() time.Duration {
	return time.Duration(t) * time.Millisecond
}

// Seconds converts the timestamp to fractional seconds.
func (t Timestamp) Seconds() float64 {
	return float64(t) / 1000.0
}

// TimestampFromDuration converts a duration to a millisecond timestamp.
func TimestampFromDuration(d time.Duration) Timestamp {
	return Timestamp(d.Milliseconds())
}
