package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/noveld/internal/chapters"
	"github.com/brogergvhs/noveld/internal/extract"
	"github.com/brogergvhs/noveld/internal/fetcher"
	"github.com/brogergvhs/noveld/internal/progress"
	"github.com/brogergvhs/noveld/internal/storage"
)

const base = "https://novel.example"

var prose = strings.Repeat("The river ran cold under the old stone bridge. ", 5)

func indexHTML(n int) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Moon - Read Online</title></head><body><h1>Moon</h1><div id="list">`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<a href="/c/%d">Chapter %d</a>`, i, i)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func chapterHTML(n int) string {
	return fmt.Sprintf(`<html><body><h1>Chapter %d</h1><div id="content"><p>%s</p></div></body></html>`, n, prose)
}

// site is a scripted Fetcher.
type site struct {
	chapters int
	fail     map[string]error
	block    map[string]chan struct{}
	started  chan string

	mu    sync.Mutex
	calls map[string]int
}

func newSite(chapters int) *site {
	return &site{
		chapters: chapters,
		fail:     map[string]error{},
		block:    map[string]chan struct{}{},
		calls:    map[string]int{},
	}
}

func (s *site) Fetch(ctx context.Context, target string) (*fetcher.Page, error) {
	s.mu.Lock()
	s.calls[target]++
	ch := s.block[target]
	err := s.fail[target]
	s.mu.Unlock()

	if s.started != nil {
		s.started <- target
	}
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	if target == base+"/book" {
		return &fetcher.Page{URL: target, FinalURL: target, Status: 200, HTML: indexHTML(s.chapters)}, nil
	}
	var n int
	if _, err := fmt.Sscanf(target, base+"/c/%d", &n); err != nil {
		return nil, &fetcher.StatusError{Code: 404, URL: target}
	}
	return &fetcher.Page{URL: target, FinalURL: target, Status: 200, HTML: chapterHTML(n)}, nil
}

func (s *site) callCount(target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[target]
}

func (s *site) chapterCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.calls {
		if strings.HasPrefix(k, base+"/c/") {
			n += v
		}
	}
	return n
}

type memSink struct {
	mu    sync.Mutex
	names []string
	texts map[string]string
	err   error
}

func (m *memSink) Persist(_ context.Context, name, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.texts == nil {
		m.texts = map[string]string{}
	}
	m.names = append(m.names, name)
	m.texts[name] = text
	return nil
}

func testSettings() Settings {
	s := DefaultSettings()
	s.RequestDelay = 0
	s.JitterMin = 0
	s.JitterMax = 0
	s.RetryBackoff = time.Millisecond
	s.Timeout = 2 * time.Second
	return s
}

func newOrchestrator(f fetcher.Fetcher, sink Sink, settings Settings) *Orchestrator {
	return New(Options{Fetcher: f, Sink: sink, Settings: settings})
}

func wait(t *testing.T, s *Session) Result {
	t.Helper()
	select {
	case <-s.Done():
		return s.Wait()
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
		return Result{}
	}
}

func TestScrapeBook_AssemblesVolumesWithPlaceholders(t *testing.T) {
	f := newSite(5)
	f.fail[base+"/c/3"] = &fetcher.StatusError{Code: 500}
	sink := &memSink{}

	settings := testSettings()
	settings.VolumeSize = 3
	settings.BatchSize = 2
	settings.RetryTimes = 1
	o := newOrchestrator(f, sink, settings)

	var chaptersSeen atomic.Int64
	o.hooks.OnChapter = func(extract.Chapter) { chaptersSeen.Add(1) }

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	res := wait(t, s)

	require.NoError(t, res.Err)
	assert.Equal(t, progress.KindComplete, res.Final.Kind)
	assert.Equal(t, "Moon", res.Book)
	assert.Equal(t, 5, res.Chapters)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(5), chaptersSeen.Load())

	assert.Equal(t, []string{"Moon1-3.txt", "Moon4-5.txt"}, sink.names)
	first := sink.texts["Moon1-3.txt"]
	assert.True(t, strings.HasPrefix(first, "Moon\n\nChapter 1\n\n"))
	assert.Contains(t, first, "Chapter 3\n\n[scrape failed: HTTP 500]")
	assert.Less(t, strings.Index(first, "Chapter 2"), strings.Index(first, "Chapter 3"))
	assert.True(t, strings.HasPrefix(sink.texts["Moon4-5.txt"], "Moon\n\nChapter 4"))

	// 5xx is retried once
	assert.Equal(t, 2, f.callCount(base+"/c/3"))
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Session())
}

func TestScrapeBook_DownloadPathPrefix(t *testing.T) {
	sink := &memSink{}
	settings := testSettings()
	settings.DownloadPath = "novels"
	o := newOrchestrator(newSite(2), sink, settings)

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	wait(t, s)

	assert.Equal(t, []string{"novels/Moon1-2.txt"}, sink.names)
}

func TestScrapeBook_RetriesNetworkErrors(t *testing.T) {
	var attempts atomic.Int64
	inner := newSite(1)
	f := fetcher.Func(func(ctx context.Context, target string) (*fetcher.Page, error) {
		if target == base+"/c/1" && attempts.Add(1) == 1 {
			return nil, fmt.Errorf("%w: connection reset", fetcher.ErrNetwork)
		}
		return inner.Fetch(ctx, target)
	})
	sink := &memSink{}
	o := newOrchestrator(f, sink, testSettings())

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	res := wait(t, s)

	assert.Equal(t, 0, res.Failed)
	assert.Contains(t, sink.texts["Moon1-1.txt"], "The river ran cold")
}

func TestScrapeBook_RespectsConcurrencyLimit(t *testing.T) {
	inner := newSite(12)
	var inFlight, peak atomic.Int64
	f := fetcher.Func(func(ctx context.Context, target string) (*fetcher.Page, error) {
		if strings.HasPrefix(target, base+"/c/") {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
		}
		return inner.Fetch(ctx, target)
	})

	sink := &memSink{}
	settings := testSettings()
	settings.Concurrency = 3
	settings.BatchSize = 5
	settings.VolumeSize = 12
	o := newOrchestrator(f, sink, settings)

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	res := wait(t, s)

	require.NoError(t, res.Err)
	assert.Equal(t, 12, res.Chapters)
	assert.Equal(t, 0, res.Failed)
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Greater(t, peak.Load(), int64(1), "fetches overlap inside a batch")
	assert.Equal(t, []string{"Moon1-12.txt"}, sink.names)
}

func TestScrapeBook_TimeoutBecomesPlaceholder(t *testing.T) {
	inner := newSite(3)
	f := fetcher.Func(func(ctx context.Context, target string) (*fetcher.Page, error) {
		if target == base+"/c/2" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return inner.Fetch(ctx, target)
	})

	sink := &memSink{}
	settings := testSettings()
	settings.Timeout = 50 * time.Millisecond
	settings.RetryTimes = 0
	o := newOrchestrator(f, sink, settings)

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	res := wait(t, s)

	require.NoError(t, res.Err)
	assert.Equal(t, progress.KindComplete, res.Final.Kind)
	assert.Equal(t, 3, res.Chapters)
	assert.Equal(t, 1, res.Failed)

	text := sink.texts["Moon1-3.txt"]
	assert.Contains(t, text, "Chapter 2\n\n[scrape failed: timeout]")
	assert.Contains(t, text, "Chapter 3\n\n"+strings.TrimSpace(prose))
}

func TestScrapeBook_RejectsConcurrentSession(t *testing.T) {
	f := newSite(2)
	release := make(chan struct{})
	f.block[base+"/book"] = release
	o := newOrchestrator(f, &memSink{}, testSettings())

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)

	_, err = o.ScrapeBook(base + "/book")
	assert.ErrorIs(t, err, ErrConcurrentSession)
	_, err = o.ScrapeChapters(base+"/book", []int{1})
	assert.ErrorIs(t, err, ErrConcurrentSession)
	assert.Same(t, s, o.Session())

	close(release)
	res := wait(t, s)
	assert.NoError(t, res.Err)

	// idle again: a new session is accepted
	s2, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	wait(t, s2)
}

func TestScrapeBook_StopDiscardsVolume(t *testing.T) {
	f := newSite(4)
	f.block[base+"/c/2"] = make(chan struct{})
	f.started = make(chan string, 16)
	sink := &memSink{}

	settings := testSettings()
	settings.Concurrency = 1
	o := newOrchestrator(f, sink, settings)

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)

	for target := range f.started {
		if target == base+"/c/2" {
			break
		}
	}
	o.Stop()
	res := wait(t, s)

	assert.ErrorIs(t, res.Err, ErrStopped)
	assert.Equal(t, progress.KindStopped, res.Final.Kind)
	assert.Empty(t, sink.names)
	assert.Equal(t, 0, f.callCount(base+"/c/3"))
	assert.True(t, s.StopRequested())
	assert.Equal(t, StateIdle, o.State())

	last, ok := o.Channel().Last()
	require.True(t, ok)
	assert.Equal(t, progress.KindStopped, last.Kind)
}

func TestScrapeBook_PauseAndResume(t *testing.T) {
	f := newSite(4)
	release := make(chan struct{})
	f.block[base+"/c/1"] = release
	f.started = make(chan string, 16)
	sink := &memSink{}

	settings := testSettings()
	settings.Concurrency = 1
	o := newOrchestrator(f, sink, settings)

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)

	for target := range f.started {
		if target == base+"/c/1" {
			break
		}
	}
	require.True(t, o.TogglePause())
	close(release)

	time.Sleep(150 * time.Millisecond)
	// chapter 2 may already have passed the gate before the pause
	assert.LessOrEqual(t, f.chapterCalls(), 2)
	assert.Equal(t, StatePaused, o.State())
	assert.True(t, s.Paused())
	assert.True(t, s.Running())

	last, _ := o.Channel().Last()
	assert.True(t, last.Paused)

	require.False(t, o.TogglePause())
	res := wait(t, s)

	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Chapters)
	assert.Equal(t, []string{"Moon1-4.txt"}, sink.names)
}

func TestScrapeBook_StopWhilePaused(t *testing.T) {
	f := newSite(3)
	release := make(chan struct{})
	f.block[base+"/c/1"] = release
	f.started = make(chan string, 16)

	settings := testSettings()
	settings.Concurrency = 1
	o := newOrchestrator(f, &memSink{}, settings)

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	for target := range f.started {
		if target == base+"/c/1" {
			break
		}
	}

	o.TogglePause()
	close(release)
	o.Stop()

	res := wait(t, s)
	assert.ErrorIs(t, res.Err, ErrStopped)
	assert.Equal(t, progress.KindStopped, res.Final.Kind)
}

func TestScrapeBook_EmptyIndexFails(t *testing.T) {
	f := fetcher.Func(func(context.Context, string) (*fetcher.Page, error) {
		return &fetcher.Page{Status: 200, HTML: `<html><body><h1>Moon</h1><p>nothing here</p></body></html>`}, nil
	})
	o := newOrchestrator(f, &memSink{}, testSettings())

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	res := wait(t, s)

	assert.ErrorIs(t, res.Err, chapters.ErrEmptyIndex)
	assert.Equal(t, progress.KindError, res.Final.Kind)
	assert.Equal(t, StateIdle, o.State())
}

func TestScrapeBook_IndexFetchFails(t *testing.T) {
	f := newSite(3)
	f.fail[base+"/book"] = &fetcher.StatusError{Code: 403}
	o := newOrchestrator(f, &memSink{}, testSettings())

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	res := wait(t, s)

	var se *fetcher.StatusError
	assert.ErrorAs(t, res.Err, &se)
	assert.Equal(t, progress.KindError, res.Final.Kind)
	assert.Equal(t, 1, f.callCount(base+"/book"))
}

func TestScrapeBook_UnauthorizedWriteFails(t *testing.T) {
	sink := &memSink{err: fmt.Errorf("%w: %w", storage.ErrWriteUnauthorized, storage.ErrNoPermission)}
	settings := testSettings()
	settings.VolumeSize = 1
	o := newOrchestrator(newSite(3), sink, settings)

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	res := wait(t, s)

	assert.ErrorIs(t, res.Err, storage.ErrWriteUnauthorized)
	assert.Equal(t, progress.KindError, res.Final.Kind)
	assert.Equal(t, "Output directory not writable", res.Final.Status)
}

func TestScrapeChapters_MergesSelection(t *testing.T) {
	sink := &memSink{}
	settings := testSettings()
	settings.VolumeSize = 1
	o := newOrchestrator(newSite(6), sink, settings)

	s, err := o.ScrapeChapters(base+"/book", []int{2, 3, 5})
	require.NoError(t, err)
	res := wait(t, s)

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"Moon_ch2-3,5.txt"}, sink.names)
	text := sink.texts["Moon_ch2-3,5.txt"]
	assert.Contains(t, text, "Chapter 5")
	assert.NotContains(t, text, "Chapter 4")
}

func TestScrapeChapters_NoMatch(t *testing.T) {
	o := newOrchestrator(newSite(3), &memSink{}, testSettings())

	_, err := o.ScrapeChapters(base+"/book", nil)
	assert.ErrorIs(t, err, chapters.ErrNoSelection)

	s, err := o.ScrapeChapters(base+"/book", []int{40})
	require.NoError(t, err)
	res := wait(t, s)

	assert.ErrorIs(t, res.Err, chapters.ErrNoSelection)
	assert.Contains(t, res.Final.Detail, "available chapter numbers: 1, 2, 3")
}

func TestScrapeBook_ReplayAfterReconnect(t *testing.T) {
	o := newOrchestrator(newSite(2), &memSink{}, testSettings())

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	wait(t, s)

	sub := o.Channel().Attach()
	defer sub.Detach()

	select {
	case snap := <-sub.C():
		assert.Equal(t, progress.KindComplete, snap.Kind)
		assert.Equal(t, 2, snap.Current)
		assert.Equal(t, s.ID, snap.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no replay")
	}
}

func TestScrapeBook_OneTerminalSnapshot(t *testing.T) {
	o := newOrchestrator(newSite(3), &memSink{}, testSettings())
	sub := o.Channel().Attach()
	defer sub.Detach()

	s, err := o.ScrapeBook(base + "/book")
	require.NoError(t, err)
	wait(t, s)

	terminal := 0
	deadline := time.After(time.Second)
	for terminal == 0 {
		select {
		case snap := <-sub.C():
			if snap.Terminal() {
				terminal++
			}
		case <-deadline:
			t.Fatal("no terminal snapshot")
		}
	}

	select {
	case snap := <-sub.C():
		t.Fatalf("unexpected snapshot after terminal: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTogglePauseAndStopWhenIdle(t *testing.T) {
	o := newOrchestrator(newSite(1), &memSink{}, testSettings())

	assert.False(t, o.TogglePause())
	o.Stop()
	assert.Equal(t, StateIdle, o.State())
}

func TestScrapeBook_RequiresURL(t *testing.T) {
	o := newOrchestrator(newSite(1), &memSink{}, testSettings())

	_, err := o.ScrapeBook("  ")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConcurrentSession))
	assert.Equal(t, StateIdle, o.State())
}

func TestPaceUsesDelayAndJitter(t *testing.T) {
	settings := testSettings()
	settings.RequestDelay = 150 * time.Millisecond
	settings.JitterMin = 30 * time.Millisecond
	settings.JitterMax = 80 * time.Millisecond
	o := newOrchestrator(newSite(1), &memSink{}, settings)

	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	s := newSession(context.Background(), "id", base, nil)
	for i := 0; i < 20; i++ {
		require.NoError(t, o.pace(s))
	}
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 180*time.Millisecond)
		assert.LessOrEqual(t, d, 230*time.Millisecond)
	}
}
