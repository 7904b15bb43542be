package auxutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpandHostlist expands a compressed hostlist such as "node[1-3,5]" or
// "node[01-03]" (zero-padded widths are preserved) into its individual
// hostnames, in the order the groups and ranges are written. Top-level
// commas separate groups; a group with no "[...]" suffix is emitted
// unchanged as one host.
func ExpandHostlist(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}, nil
	}
	var out []string
	for _, group := range splitTopLevelCommas(s) {
		open := strings.IndexByte(group, '[')
		if open < 0 {
			out = append(out, group)
			continue
		}
		if !strings.HasSuffix(group, "]") {
			return nil, fmt.Errorf("auxutil: hostlist %q: unterminated range", group)
		}
		prefix := group[:open]
		inner := group[open+1 : len(group)-1]
		for _, part := range strings.Split(inner, ",") {
			lo, hi, width, err := parsePaddedRange(part)
			if err != nil {
				return nil, fmt.Errorf("auxutil: hostlist %q: %w", group, err)
			}
			for n := lo; n <= hi; n++ {
				out = append(out, fmt.Sprintf("%s%0*d", prefix, width, n))
			}
		}
	}
	return out, nil
}

// splitTopLevelCommas splits s on commas that are not inside a [...]
// bracket pair, since those separate range elements, not hosts.
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parsePaddedRange(part string) (lo, hi uint64, width int, err error) {
	if i := strings.IndexByte(part, '-'); i >= 0 {
		loS, hiS := part[:i], part[i+1:]
		lo, err = strconv.ParseUint(loS, 10, 32)
		if err != nil {
			return 0, 0, 0, err
		}
		hi, err = strconv.ParseUint(hiS, 10, 32)
		if err != nil {
			return 0, 0, 0, err
		}
		if hi < lo {
			return 0, 0, 0, fmt.Errorf("range %q is descending", part)
		}
		return lo, hi, paddedWidth(loS), nil
	}
	n, err := strconv.ParseUint(part, 10, 32)
	if err != nil {
		return 0, 0, 0, err
	}
	return n, n, paddedWidth(part), nil
}

func paddedWidth(s string) int {
	if len(s) > 1 && s[0] == '0' {
		return len(s)
	}
	return 0
}

// CompressHostlist groups hostnames sharing a common non-numeric prefix
// and a contiguous numeric suffix into "prefix[lo-hi,...]" form. Each
// distinct prefix (and zero-pad width) forms its own group, in first-seen
// order; hosts that don't end in digits are appended unchanged after all
// groups, comma-joined with them.
func CompressHostlist(hosts []string) string {
	type group struct {
		prefix string
		nums   []uint32
		width  int
	}
	order := []string{}
	groups := make(map[string]*group)
	var plain []string

	for _, h := range hosts {
		prefix, numStr, ok := splitTrailingDigits(h)
		if !ok {
			plain = append(plain, h)
			continue
		}
		n, err := strconv.ParseUint(numStr, 10, 32)
		if err != nil {
			plain = append(plain, h)
			continue
		}
		width := 0
		if len(numStr) > 1 && numStr[0] == '0' {
			width = len(numStr)
		}
		key := fmt.Sprintf("%s\x00%d", prefix, width)
		g, seen := groups[key]
		if !seen {
			g = &group{prefix: prefix, width: width}
			groups[key] = g
			order = append(order, key)
		}
		g.nums = append(g.nums, uint32(n))
	}

	var parts []string
	for _, key := range order {
		g := groups[key]
		ranges := CompressIDSet(g.nums)
		if g.width > 0 {
			ranges = widenRanges(ranges, g.width)
		}
		if strings.Contains(ranges, "-") || strings.Contains(ranges, ",") {
			parts = append(parts, fmt.Sprintf("%s[%s]", g.prefix, ranges))
		} else {
			parts = append(parts, g.prefix+ranges)
		}
	}
	parts = append(parts, plain...)
	return strings.Join(parts, ",")
}

func splitTrailingDigits(s string) (prefix, digits string, ok bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return "", "", false
	}
	return s[:i], s[i:], true
}

func widenRanges(compressed string, width int) string {
	pieces := strings.Split(compressed, ",")
	for i, p := range pieces {
		if dash := strings.IndexByte(p, '-'); dash >= 0 {
			lo, _ := strconv.ParseUint(p[:dash], 10, 32)
			hi, _ := strconv.ParseUint(p[dash+1:], 10, 32)
			pieces[i] = fmt.Sprintf("%0*d-%0*d", width, lo, width, hi)
		} else {
			n, _ := strconv.ParseUint(p, 10, 32)
			pieces[i] = fmt.Sprintf("%0*d", width, n)
		}
	}
	return strings.Join(pieces, ",")
}
