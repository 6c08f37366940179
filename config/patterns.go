package config

import "github.com/bmatcuk/doublestar/v4"

// MatchesPatterns reports whether path is in scope under patterns: a
// leading "!" on a pattern excludes matches instead of including them,
// evaluated strip-prefix-then-invert at this call site (never inside the
// matcher itself), per spec §3/§6. Patterns are evaluated in order; the
// last matching pattern wins, so a later "!exclude" can override an
// earlier include and vice versa.
func MatchesPatterns(path string, patterns []string) bool {
	matched := false
	for _, pattern := range patterns {
		exclude := false
		p := pattern
		if len(p) > 0 && p[0] == '!' {
			exclude = true
			p = p[1:]
		}
		ok, err := doublestar.Match(p, path)
		if err != nil || !ok {
			continue
		}
		matched = !exclude
	}
	return matched
}
