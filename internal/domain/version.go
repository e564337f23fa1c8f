package domain

import "strings"

// CompareVersions compares dotted numeric versions segment by segment, most
// significant first. Missing segments count as 0 and each segment's leading
// digits are its value, so "1.2" == "1.2.0" and "2.0.0-beta" == "2.0.0".
// It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	n := max(len(as), len(bs))
	for i := range n {
		x, y := segment(as, i), segment(bs, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func segment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v := 0
	for _, r := range parts[i] {
		if r < '0' || r > '9' {
			break
		}
		v = v*10 + int(r-'0')
	}
	return v
}

// Satisfies reports whether version lies within the dependency's bounds.
func (d Dependency) Satisfies(version string) bool {
	if d.MinVersion != "" && CompareVersions(version, d.MinVersion) < 0 {
		return false
	}
	if d.MaxVersion != "" && CompareVersions(version, d.MaxVersion) > 0 {
		return false
	}
	return true
}
