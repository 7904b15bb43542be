package auxutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseFSD parses a Flexible Specification of Duration string — a
// non-negative decimal number directly followed by one unit suffix
// (ms, s, m, h, d) — into a time.Duration. A bare number with no suffix
// is interpreted as whole seconds, matching the broker's config files
// where sync/idle intervals are often written unitless.
func ParseFSD(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("auxutil: empty FSD string")
	}
	i := 0
	for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("auxutil: FSD %q has no leading number", s)
	}
	numPart, unitPart := s[:i], strings.TrimSpace(s[i:])
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("auxutil: FSD %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("auxutil: FSD %q: negative duration", s)
	}
	var unit time.Duration
	switch unitPart {
	case "ms":
		unit = time.Millisecond
	case "", "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("auxutil: FSD %q: unknown unit %q", s, unitPart)
	}
	return time.Duration(n * float64(unit)), nil
}

// FormatFSD renders d in the largest unit (d, h, m, s, ms) that divides
// it evenly, falling back to fractional seconds. The result round-trips
// through ParseFSD.
func FormatFSD(d time.Duration) string {
	switch {
	case d == 0:
		return "0s"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	case d%time.Millisecond == 0:
		return fmt.Sprintf("%dms", d/time.Millisecond)
	default:
		return fmt.Sprintf("%gs", d.Seconds())
	}
}
