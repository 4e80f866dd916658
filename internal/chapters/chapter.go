package chapters

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrEmptyIndex is returned when no chapter links can be discovered on a
	// directory page.
	ErrEmptyIndex = errors.New("no chapter links found on page")

	// ErrNoSelection is returned when a chapter-number set matches nothing in
	// the index.
	ErrNoSelection = errors.New("none of the requested chapters were found")
)

// Anchor is a raw href/text pair taken from a directory page.
type Anchor struct {
	Href string
	Text string
}

// Link is one resolved entry of a chapter index.
type Link struct {
	Href string
	Text string

	// Number is the best-effort chapter ordinal parsed from the text or href.
	// nil when nothing could be inferred.
	Number *int

	// Seq is the 1-based position in reading order.
	Seq int
}

// Label is the display name used in progress messages and placeholders.
func (l Link) Label() string {
	if t := strings.TrimSpace(l.Text); t != "" {
		return t
	}
	if l.Number != nil {
		return "Chapter " + strconv.Itoa(*l.Number)
	}
	return "Chapter " + strconv.Itoa(l.Seq)
}

// Index is the ordered chapter list of one book.
type Index struct {
	BookTitle string
	Links     []Link
}

// Len returns the number of chapters in the index.
func (ix Index) Len() int { return len(ix.Links) }

// Select keeps the links whose chapter number is in nums. Links without an
// inferred number are matched by their position instead. Index order is
// preserved.
func (ix Index) Select(nums []int) ([]Link, error) {
	want := make(map[int]bool, len(nums))
	for _, n := range nums {
		want[n] = true
	}

	var out []Link
	for _, l := range ix.Links {
		key := l.Seq
		if l.Number != nil {
			key = *l.Number
		}
		if want[key] {
			out = append(out, l)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSelection, ix.availableHint())
	}

	return out, nil
}

func (ix Index) availableHint() string {
	var nums []int
	for _, l := range ix.Links {
		if l.Number != nil {
			nums = append(nums, *l.Number)
		}
	}

	if len(nums) == 0 {
		return fmt.Sprintf("the index has %d chapters, check the requested positions", len(ix.Links))
	}

	slices.Sort(nums)
	shown := nums
	more := ""
	if len(shown) > 10 {
		shown = shown[:10]
		more = "..."
	}

	parts := make([]string, len(shown))
	for i, n := range shown {
		parts[i] = strconv.Itoa(n)
	}

	return fmt.Sprintf("available chapter numbers: %s%s (%d chapters)", strings.Join(parts, ", "), more, len(nums))
}
