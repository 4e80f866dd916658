package ui

import "sync/atomic"

type Stats struct {
	TotalChapters  atomic.Int64
	FailedChapters atomic.Int64
	TotalVolumes   atomic.Int64
	TotalBytes     atomic.Int64
}

// AddBytes matches the fetcher's OnBytes hook.
func (s *Stats) AddBytes(n int64) {
	s.TotalBytes.Add(n)
}
