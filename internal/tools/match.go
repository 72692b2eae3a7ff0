package tools

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
)

var versionPattern = regexp.MustCompile(`v?[0-9]+(\.[0-9]+)+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?`)

// versionMatches reports whether the probe output satisfies desired under mode.
func versionMatches(output, desired string, mode MatchMode) bool {
	desired = strings.TrimSpace(desired)
	if desired == "" {
		return false
	}
	switch mode {
	case MatchToken:
		for _, tok := range versionTokens(output) {
			if sameVersion(tok, desired) {
				return true
			}
		}
		return false
	case MatchSemver:
		want, err := semver.NewVersion(desired)
		if err != nil {
			return versionMatches(output, desired, MatchToken)
		}
		for _, candidate := range versionPattern.FindAllString(output, -1) {
			got, err := semver.NewVersion(candidate)
			if err == nil && got.Equal(want) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(output, desired) ||
			strings.Contains(output, strings.TrimPrefix(desired, "v"))
	}
}

func versionTokens(output string) []string {
	return strings.FieldsFunc(output, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`/,+:;"'{}()=`, r)
	})
}

func sameVersion(a, b string) bool {
	return strings.TrimPrefix(a, "v") == strings.TrimPrefix(b, "v")
}

// extractVersion pulls the first version-looking token out of probe output,
// falling back to its first line.
func extractVersion(output string) string {
	if match := versionPattern.FindString(output); match != "" {
		return match
	}
	return firstLine(output)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}

// lastLine returns the last non-empty line of s. Tools print the actual
// failure after their progress output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
