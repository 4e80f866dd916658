package chapters

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	reCNChapter  = regexp.MustCompile(`第\s*([0-9零〇一二两三四五六七八九十百千万]+)\s*[章回节話话]`)
	reENChapter  = regexp.MustCompile(`(?i)\b(?:chapter|chap|ch)\.?\s*0*([0-9]+)`)
	reLastDigits = regexp.MustCompile(`([0-9]+)[^0-9]*$`)

	reChapterHref = regexp.MustCompile(`(?i)chapter|/[0-9]+(?:/|\.[a-z]+$|$)`)
)

// inferNumber tries, in order, a localized "Chapter N" pattern in the text,
// the last run of digits in the href path and the last run of digits in the
// text.
func inferNumber(href, text string) *int {
	if n, ok := localizedNumber(text); ok {
		return &n
	}
	if n, ok := lastDigits(hrefPath(href)); ok {
		return &n
	}
	if n, ok := lastDigits(text); ok {
		return &n
	}
	return nil
}

func localizedNumber(text string) (int, bool) {
	if m := reCNChapter.FindStringSubmatch(text); m != nil {
		if n, ok := parseCNNumber(m[1]); ok {
			return n, true
		}
	}
	if m := reENChapter.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

func lastDigits(s string) (int, bool) {
	m := reLastDigits.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func hrefPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return u.EscapedPath()
}

// looksLikeChapter is the filter used when no table-of-contents container is
// found on the page.
func looksLikeChapter(href, text string) bool {
	if reChapterHref.MatchString(hrefPath(href)) || strings.Contains(strings.ToLower(href), "chapter") {
		return true
	}
	_, ok := localizedNumber(text)
	return ok
}

var cnDigits = map[rune]int{
	'零': 0, '〇': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var cnUnits = map[rune]int{'十': 10, '百': 100, '千': 1000}

// parseCNNumber accepts ASCII digits or Chinese numerals up to 万 scale.
func parseCNNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}

	total, section, digit := 0, 0, -1
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = int(r - '0')
		case r == '万':
			if digit >= 0 {
				section += digit
			}
			total += section * 10000
			section, digit = 0, -1
		default:
			if d, ok := cnDigits[r]; ok {
				digit = d
				continue
			}
			u, ok := cnUnits[r]
			if !ok {
				return 0, false
			}
			if digit < 0 {
				digit = 1
			}
			section += digit * u
			digit = -1
		}
	}
	if digit > 0 {
		section += digit
	}

	n := total + section
	return n, n > 0
}
