package chapters

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// MaxRangeChapters caps how many chapter numbers one selection may expand to.
const MaxRangeChapters = 100000

// ParseRange parses chapter selections such as "2-10,15,20-21" into a sorted,
// de-duplicated list of chapter numbers.
func ParseRange(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty chapter range")
	}

	set := map[int]bool{}
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := atoi(lo)
			end, err2 := atoi(hi)
			if err1 != nil || err2 != nil || start < 1 || end < start {
				return nil, fmt.Errorf("invalid chapter range %q", part)
			}
			if end-start >= MaxRangeChapters || len(set)+end-start >= MaxRangeChapters {
				return nil, fmt.Errorf("chapter range %q exceeds %d chapters", part, MaxRangeChapters)
			}
			for i := start; i <= end; i++ {
				set[i] = true
			}
			continue
		}

		n, err := atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid chapter number %q", part)
		}
		set[n] = true
		if len(set) > MaxRangeChapters {
			return nil, fmt.Errorf("chapter selection exceeds %d chapters", MaxRangeChapters)
		}
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("empty chapter range")
	}

	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.Sort(out)

	return out, nil
}

// FormatRange compresses sorted chapter numbers into "1-3,5,7-8".
func FormatRange(nums []int) string {
	if len(nums) == 0 {
		return ""
	}

	nums = slices.Clone(nums)
	slices.Sort(nums)
	nums = slices.Compact(nums)

	var parts []string
	start, end := nums[0], nums[0]

	flush := func() {
		if start == end {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
		}
	}

	for _, n := range nums[1:] {
		if n == end+1 {
			end = n
			continue
		}
		flush()
		start, end = n, n
	}
	flush()

	return strings.Join(parts, ",")
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
