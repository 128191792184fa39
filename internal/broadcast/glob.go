package broadcast

import "strings"

// MatchGlob reports whether name matches pattern. Patterns are anchored to
// the full string and matched case-insensitively; `*` matches any run of
// characters and `?` matches exactly one.
func MatchGlob(pattern, name string) bool {
	p := strings.ToLower(pattern)
	n := strings.ToLower(name)

	pi, ni := 0, 0
	star, starN := -1, 0
	for ni < len(n) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == n[ni]):
			pi++
			ni++
		case pi < len(p) && p[pi] == '*':
			// Remember the star; try matching it against nothing first.
			star, starN = pi, ni
			pi++
		case star >= 0:
			// Backtrack: let the last star absorb one more character.
			starN++
			pi, ni = star+1, starN
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
