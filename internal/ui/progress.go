package ui

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/brogergvhs/noveld/internal/progress"
	"github.com/brogergvhs/noveld/internal/util"
)

type MPBProgressManager struct {
	p *mpb.Progress
}

func NewProgressManager() *MPBProgressManager {
	return NewProgressManagerTo(os.Stdout)
}

func NewProgressManagerTo(w io.Writer) *MPBProgressManager {
	p := mpb.New(
		mpb.WithWidth(52),
		mpb.WithOutput(w),
		mpb.WithRefreshRate(120*time.Millisecond),
	)
	return &MPBProgressManager{p: p}
}

func (pm *MPBProgressManager) Close() {
	pm.p.Wait()
}

// Register adds a bar. stats may be nil; when set its byte counter is shown.
func (pm *MPBProgressManager) Register(prefix string, stats *Stats) *ProgressHandle {
	h := &ProgressHandle{
		pm:     pm,
		prefix: prefix,
		stats:  stats,
	}
	h.status.Store("")
	h.initBar()
	return h
}

// ProgressHandle renders one scrape session and implements
// progress.Observer.
type ProgressHandle struct {
	pm     *MPBProgressManager
	prefix string
	bar    *mpb.Bar
	stats  *Stats

	total  int64
	status atomic.Value

	start   time.Time
	elapsed atomic.Int64

	final atomic.Bool
}

func (h *ProgressHandle) initBar() {
	h.start = time.Now()

	h.bar = h.pm.p.New(
		0,
		mpb.BarStyle().Rbound("]"),

		mpb.PrependDecorators(
			decor.Name(h.prefix+"  "),
		),

		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncWidth),
			decor.CountersNoUnit(" | %d/%d chapters", decor.WCSyncWidth),
			decor.Any(func(_ decor.Statistics) string {
				if h.stats == nil {
					return ""
				}
				return " | " + util.Human(h.stats.TotalBytes.Load())
			}),

			decor.Any(func(_ decor.Statistics) string {
				if h.final.Load() {
					sec := h.elapsed.Load()
					return fmt.Sprintf(" | %ds", sec)
				}
				sec := time.Since(h.start).Seconds()

				return fmt.Sprintf(" | %ds", int(sec))
			}),
			decor.Any(func(_ decor.Statistics) string {
				if s, _ := h.status.Load().(string); s != "" {
					return " | " + s
				}
				return ""
			}),
		),
	)
}

func (h *ProgressHandle) Update(done, total int) {
	if h.final.Load() {
		return
	}

	if total > 0 {
		atomic.StoreInt64(&h.total, int64(total))
		h.bar.SetTotal(int64(total), false)
	}

	h.bar.SetCurrent(int64(done))
}

// Observe maps a session snapshot onto the bar.
func (h *ProgressHandle) Observe(s progress.Snapshot) {
	switch {
	case s.Kind == progress.KindProgress && s.Paused:
		h.status.Store("paused")
	case s.Kind == progress.KindProgress:
		h.status.Store("")
	default:
		h.status.Store(string(s.Kind))
	}

	h.Update(s.Current, s.Total)

	if s.Terminal() {
		if s.Kind == progress.KindComplete {
			h.MarkDone()
		} else {
			h.Abort()
		}
	}
}

func (h *ProgressHandle) MarkDone() {
	if h.final.Swap(true) {
		return
	}

	h.elapsed.Store(int64(time.Since(h.start).Seconds()))

	total := atomic.LoadInt64(&h.total)
	h.bar.SetCurrent(total)
	h.bar.SetTotal(total, true)
}

// Abort freezes the bar where it is.
func (h *ProgressHandle) Abort() {
	if h.final.Swap(true) {
		return
	}

	h.elapsed.Store(int64(time.Since(h.start).Seconds()))
	h.bar.Abort(false)
}

var _ progress.Observer = (*ProgressHandle)(nil)
