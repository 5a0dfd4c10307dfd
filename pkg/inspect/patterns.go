package inspect

import (
	"regexp"
	"strings"
)

// ScanLogPatterns scans log text for the first matching known-failure
// pattern. Patterns are regular expressions; a pattern that fails to
// compile is matched as a literal substring instead. Returns the pattern
// that matched.
func ScanLogPatterns(text string, patterns []string) (string, bool) {
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if strings.Contains(text, pattern) {
				return pattern, true
			}
			continue
		}
		if re.MatchString(text) {
			return pattern, true
		}
	}
	return "", false
}

// TailLines returns the last n lines of text, preserving line order
func TailLines(text string, n int) string {
	if n <= 0 {
		return ""
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
