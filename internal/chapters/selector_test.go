package chapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	got, err := ParseRange("2-4, 7,3 ,10-10")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 7, 10}, got)

	for _, bad := range []string{"", "  ", "0", "5-2", "a-b", "x", "-3"} {
		_, err := ParseRange(bad)
		assert.Error(t, err, bad)
	}

	_, err = ParseRange("1-2000000000")
	assert.ErrorContains(t, err, "exceeds")

	_, err = ParseRange("1-60000,70001-130000")
	assert.ErrorContains(t, err, "exceeds")

	got, err = ParseRange("1-100000")
	require.NoError(t, err)
	assert.Len(t, got, MaxRangeChapters)
}

func TestFormatRange(t *testing.T) {
	assert.Equal(t, "", FormatRange(nil))
	assert.Equal(t, "4", FormatRange([]int{4}))
	assert.Equal(t, "1-3,5,7-8", FormatRange([]int{8, 1, 2, 3, 5, 7, 2}))
}

func intp(n int) *int { return &n }

func TestIndexSelect(t *testing.T) {
	ix := Index{
		BookTitle: "Book",
		Links: []Link{
			{Href: "u1", Number: intp(10), Seq: 1},
			{Href: "u2", Number: intp(11), Seq: 2},
			{Href: "u3", Seq: 3},
			{Href: "u4", Number: intp(13), Seq: 4},
		},
	}

	got, err := ix.Select([]int{13, 3, 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "u1", got[0].Href)
	assert.Equal(t, "u3", got[1].Href)
	assert.Equal(t, "u4", got[2].Href)

	_, err = ix.Select([]int{99})
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Contains(t, err.Error(), "10, 11, 13")
}

func TestLinkLabel(t *testing.T) {
	assert.Equal(t, "Prologue", Link{Text: " Prologue "}.Label())
	assert.Equal(t, "Chapter 7", Link{Number: intp(7), Seq: 2}.Label())
	assert.Equal(t, "Chapter 2", Link{Seq: 2}.Label())
}
