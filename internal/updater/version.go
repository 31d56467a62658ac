package updater

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IsNewer reports whether remote is strictly greater than installed. Versions
// semver cannot parse, such as "1.2.3.4", are compared segment by segment as
// dotted numbers. Anything else never counts as newer.
func IsNewer(installed, remote string) bool {
	iv, iErr := semver.NewVersion(installed)
	rv, rErr := semver.NewVersion(remote)
	if iErr == nil && rErr == nil {
		return iv.LessThan(rv)
	}
	is, ok := numericSegments(installed)
	if !ok {
		return false
	}
	rs, ok := numericSegments(remote)
	if !ok {
		return false
	}
	return compareSegments(is, rs) < 0
}

func numericSegments(v string) ([]uint64, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ".")
	segments := make([]uint64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, false
		}
		segments = append(segments, n)
	}
	return segments, true
}

// compareSegments treats missing trailing segments as zero, so 1.2.3 == 1.2.3.0.
func compareSegments(a, b []uint64) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y uint64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
