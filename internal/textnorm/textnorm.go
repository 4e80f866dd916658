// Package textnorm canonicalizes the line structure of extracted chapter text.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	lineBreaks = strings.NewReplacer(
		"\r\n", "\n",
		"\r", "\n",
		"\u2028", "\n",
		"\u2029", "\n",
		"\u0085", "\n",
	)

	reBlankRun = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line breaks, trims every line, collapses runs of blank
// lines to a single blank line and strips blank lines at both ends.
//
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(s string) string {
	if s == "" {
		return s
	}

	s = lineBreaks.Replace(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	s = reBlankRun.ReplaceAllString(s, "\n\n")

	return strings.Trim(s, "\n")
}

// Apply runs Normalize only when enabled, mirroring the clean_empty_lines
// switch.
func Apply(s string, enabled bool) string {
	if !enabled {
		return s
	}
	return Normalize(s)
}

// TrimBlankLines drops whitespace-only lines at both ends and trailing
// whitespace, leaving the indentation of the first content line and every
// inner blank run untouched.
func TrimBlankLines(s string) string {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	for {
		line, rest, ok := strings.Cut(s, "\n")
		if !ok || strings.TrimSpace(line) != "" {
			return s
		}
		s = rest
	}
}
