package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted-decimal version number of arbitrary depth
// ("1.2.3.4"), the wire type named "Version" in the event catalog.
type Version []int

// ParseVersion parses a dotted-decimal string into a Version.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return nil, fmt.Errorf("version: empty string")
	}
	parts := strings.Split(s, ".")
	v := make(Version, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("version: invalid component %q: %w", p, err)
		}
		v[i] = n
	}
	return v, nil
}

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Compare returns -1, 0, or 1 comparing v to other, component-wise,
// treating a missing trailing component as 0.
func (v Version) Compare(other Version) int {
	n := len(v)
	if len(other) > n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}
