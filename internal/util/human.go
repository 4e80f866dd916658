package util

import (
	"fmt"
	"time"
)

var byteUnits = []struct {
	size int64
	name string
}{
	{1 << 30, "GB"},
	{1 << 20, "MB"},
	{1 << 10, "KB"},
}

// Human formats a byte count with binary units, e.g. "1.50 MB".
func Human(n int64) string {
	for _, u := range byteUnits {
		if n >= u.size {
			return fmt.Sprintf("%.2f %s", float64(n)/float64(u.size), u.name)
		}
	}
	return fmt.Sprintf("%d B", n)
}

// Rate formats throughput over d, e.g. "1.50 MB/s". Durations under a
// millisecond report no rate.
func Rate(n int64, d time.Duration) string {
	if d < time.Millisecond || n <= 0 {
		return "-"
	}
	return Human(int64(float64(n)/d.Seconds())) + "/s"
}
