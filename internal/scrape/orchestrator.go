// Package scrape runs a single book scrape at a time: it resolves the chapter
// index, fetches chapters in paced concurrent batches, and feeds the results
// to the volume assembler while publishing progress.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/brogergvhs/noveld/internal/chapters"
	"github.com/brogergvhs/noveld/internal/extract"
	"github.com/brogergvhs/noveld/internal/fetcher"
	"github.com/brogergvhs/noveld/internal/progress"
	"github.com/brogergvhs/noveld/internal/storage"
	"github.com/brogergvhs/noveld/internal/ui"
	"github.com/brogergvhs/noveld/internal/util"
	"github.com/brogergvhs/noveld/internal/volume"
)

var (
	// ErrConcurrentSession rejects a request while another session runs.
	ErrConcurrentSession = errors.New("a scrape session is already running")
	// ErrStopped ends a session after a stop request.
	ErrStopped = errors.New("scrape stopped")
)

// Settings are the validated knobs of a session.
type Settings struct {
	VolumeSize      int
	BatchSize       int
	RequestDelay    time.Duration
	Concurrency     int
	Timeout         time.Duration
	RetryTimes      int
	RetryBackoff    time.Duration
	JitterMin       time.Duration
	JitterMax       time.Duration
	CleanEmptyLines bool
	DownloadPath    string
}

func DefaultSettings() Settings {
	return Settings{
		VolumeSize:      100,
		BatchSize:       50,
		RequestDelay:    150 * time.Millisecond,
		Concurrency:     10,
		Timeout:         15 * time.Second,
		RetryTimes:      2,
		RetryBackoff:    500 * time.Millisecond,
		JitterMin:       30 * time.Millisecond,
		JitterMax:       80 * time.Millisecond,
		CleanEmptyLines: true,
	}
}

// Sink persists finished volumes. A sink with a Reset method is reset at the
// start of every session.
type Sink interface {
	Persist(ctx context.Context, name, text string) error
}

// Hooks observe per-chapter and per-volume events, e.g. for statistics.
type Hooks struct {
	OnChapter func(extract.Chapter)
	OnVolume  func(volume.Flushed)
}

type Options struct {
	Fetcher   fetcher.Fetcher
	Sink      Sink
	Extractor *extract.Extractor
	Channel   *progress.Channel
	Settings  Settings
	Hooks     Hooks
	Log       *ui.Logger
}

// Orchestrator owns at most one running Session.
type Orchestrator struct {
	fetch     fetcher.Fetcher
	sink      Sink
	extractor *extract.Extractor
	channel   *progress.Channel
	settings  Settings
	hooks     Hooks
	log       *ui.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration

	mu      sync.Mutex
	state   State
	session *Session
}

func New(opts Options) *Orchestrator {
	if opts.Extractor == nil {
		opts.Extractor = extract.New()
	}
	if opts.Channel == nil {
		opts.Channel = progress.NewChannel()
	}
	if opts.Log == nil {
		opts.Log = ui.Discard()
	}

	return &Orchestrator{
		fetch:     opts.Fetcher,
		sink:      opts.Sink,
		extractor: opts.Extractor,
		channel:   opts.Channel,
		settings:  normalize(opts.Settings),
		hooks:     opts.Hooks,
		log:       opts.Log,
		sleep:     sleepCtx,
		jitter:    randomJitter,
	}
}

func normalize(s Settings) Settings {
	if s.VolumeSize < 1 {
		s.VolumeSize = 1
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.RetryTimes < 0 {
		s.RetryTimes = 0
	}
	if s.JitterMax < s.JitterMin {
		s.JitterMax = s.JitterMin
	}
	return s
}

// Channel is the progress channel sessions publish to.
func (o *Orchestrator) Channel() *progress.Channel { return o.channel }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns the running session, or nil when idle.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// ScrapeBook scrapes every chapter of the index at pageURL into volumes. It
// returns as soon as the session is accepted.
func (o *Orchestrator) ScrapeBook(pageURL string) (*Session, error) {
	return o.start(pageURL, nil)
}

// ScrapeChapters scrapes only the chapters whose numbers are in nums and
// merges them into a single file.
func (o *Orchestrator) ScrapeChapters(pageURL string, nums []int) (*Session, error) {
	if len(nums) == 0 {
		return nil, fmt.Errorf("%w: empty chapter selection", chapters.ErrNoSelection)
	}
	return o.start(pageURL, append([]int(nil), nums...))
}

func (o *Orchestrator) start(pageURL string, selection []int) (*Session, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, errors.New("page url is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return nil, ErrConcurrentSession
	}

	s := newSession(context.Background(), uuid.NewString(), pageURL, selection)
	o.session = s
	o.state = StateResolving

	if r, ok := o.sink.(interface{ Reset() }); ok {
		r.Reset()
	}

	go o.run(s)

	return s, nil
}

// TogglePause flips the pause flag of the running session and returns the new
// value. It is a no-op when idle.
func (o *Orchestrator) TogglePause() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.session
	if s == nil {
		return false
	}

	paused := s.togglePause()
	switch {
	case paused && o.state == StateFetching:
		o.state = StatePaused
	case !paused && o.state == StatePaused:
		o.state = StateFetching
	}

	status := "Resumed"
	if paused {
		status = "Paused"
	}
	s.mu.Lock()
	o.channel.Publish(s.progressLocked(status, ""))
	s.mu.Unlock()

	o.log.With(ui.Fields{"session": s.ID}).Infof("%s", strings.ToLower(status))
	return paused
}

// Stop asks the running session to end. The in-progress volume is discarded.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()

	if s != nil {
		s.stop()
	}
}

var _ progress.Controls = (*Orchestrator)(nil)

func (o *Orchestrator) setState(st State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if st == StateFetching && o.session != nil && o.session.Paused() {
		st = StatePaused
	}
	o.state = st
}

func (o *Orchestrator) run(s *Session) {
	log := o.log.With(ui.Fields{"session": s.ID, "url": s.PageURL})
	log.Infof("session started")

	res := o.execute(s, log)
	o.finish(s, res, log)
}

func (o *Orchestrator) finish(s *Session, res Result, log *ui.Logger) {
	s.mu.Lock()
	res.Book = s.book
	res.Chapters = s.processed
	res.Failed = s.failed
	total := s.total
	s.mu.Unlock()

	final := progress.Snapshot{
		SessionID: s.ID,
		Current:   res.Chapters,
		Total:     total,
		BookTitle: res.Book,
	}

	switch {
	case res.Err == nil:
		final.Kind = progress.KindComplete
		final.Status = fmt.Sprintf("Scraped %d chapters into %d volume(s)", res.Chapters, len(res.Volumes))
		if res.Failed > 0 {
			final.Detail = fmt.Sprintf("%d chapter(s) failed", res.Failed)
		}
		log.Infof("session complete: %d chapters, %d volumes, %d failed", res.Chapters, len(res.Volumes), res.Failed)
	case errors.Is(res.Err, ErrStopped):
		final.Kind = progress.KindStopped
		final.Status = "Stopped"
		final.Detail = fmt.Sprintf("%d of %d chapters processed, unsaved volume discarded", res.Chapters, total)
		log.Warnf("session stopped after %d chapters", res.Chapters)
	default:
		final.Kind = progress.KindError
		final.Status = "Failed"
		if errors.Is(res.Err, storage.ErrWriteUnauthorized) {
			final.Status = "Output directory not writable"
		}
		final.Detail = res.Err.Error()
		log.Errorf("session failed: %v", res.Err)
	}
	res.Final = final
	s.result = res

	o.mu.Lock()
	o.state = StateIdle
	o.session = nil
	o.channel.Publish(final)
	o.mu.Unlock()

	s.cancel()
	close(s.done)
}

func (o *Orchestrator) execute(s *Session, log *ui.Logger) Result {
	var res Result

	o.publish(s, "Resolving chapter index", s.PageURL)

	idx, err := o.resolve(s)
	if err != nil {
		return o.failed(s, res, err)
	}

	links := idx.Links
	namer := volume.RangeNamer
	size := o.settings.VolumeSize
	if s.Selection != nil {
		if links, err = idx.Select(s.Selection); err != nil {
			return o.failed(s, res, err)
		}
		namer = volume.SelectionNamer
		size = len(links)
	}

	s.mu.Lock()
	s.book = idx.BookTitle
	s.total = len(links)
	s.mu.Unlock()
	log.Infof("resolved %q: %d chapters", idx.BookTitle, len(links))

	asm := volume.New(o.sink, volume.Options{
		BookTitle:  idx.BookTitle,
		VolumeSize: size,
		Clean:      o.settings.CleanEmptyLines,
		Dir:        o.settings.DownloadPath,
		Namer:      namer,
		OnFlush: func(f volume.Flushed) {
			log.Debugf("flushing %s (chapters %d-%d)", f.Name, f.Start, f.End)
		},
	})

	o.setState(StateFetching)
	if err := o.fetchAll(s, links, asm, log); err != nil {
		asm.Discard()
		res.Volumes = asm.Flushed()
		return o.failed(s, res, err)
	}

	o.setState(StateCompleting)
	if err := asm.Flush(s.ctx); err != nil {
		res.Volumes = asm.Flushed()
		return o.failed(s, res, err)
	}

	res.Volumes = asm.Flushed()
	if o.hooks.OnVolume != nil {
		o.onVolumes(res.Volumes)
	}
	return res
}

func (o *Orchestrator) failed(s *Session, res Result, err error) Result {
	if s.StopRequested() {
		err = ErrStopped
	}
	if errors.Is(err, ErrStopped) {
		o.setState(StateStopped)
	} else {
		o.setState(StateFailed)
	}
	res.Err = err
	if o.hooks.OnVolume != nil {
		o.onVolumes(res.Volumes)
	}
	return res
}

func (o *Orchestrator) onVolumes(vs []volume.Flushed) {
	for _, v := range vs {
		o.hooks.OnVolume(v)
	}
}

func (o *Orchestrator) resolve(s *Session) (chapters.Index, error) {
	if err := s.gate(); err != nil {
		return chapters.Index{}, err
	}

	page, err := o.fetchPage(s.ctx, s.PageURL)
	if err != nil {
		return chapters.Index{}, fmt.Errorf("fetch index page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return chapters.Index{}, fmt.Errorf("parse index page: %w", err)
	}

	return chapters.Resolve(doc, page.FinalURL)
}

// fetchAll processes links in batches. Inside a batch fetches run
// concurrently, each start spaced by the pacing delay; results reach the
// assembler in index order once the batch is done.
func (o *Orchestrator) fetchAll(s *Session, links []chapters.Link, asm *volume.Assembler, log *ui.Logger) error {
	sem := semaphore.NewWeighted(int64(o.settings.Concurrency))
	first := true

	for start := 0; start < len(links); start += o.settings.BatchSize {
		end := min(start+o.settings.BatchSize, len(links))
		batch := links[start:end]
		results := make([]extract.Chapter, len(batch))

		g, gctx := errgroup.WithContext(s.ctx)
		var launchErr error

		for i, link := range batch {
			if !first {
				if launchErr = o.pace(s); launchErr != nil {
					break
				}
			}
			first = false

			if launchErr = s.gate(); launchErr != nil {
				break
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				launchErr = ErrStopped
				break
			}

			g.Go(func() error {
				defer sem.Release(1)

				ch := o.fetchChapter(gctx, link)
				results[i] = ch
				o.chapterDone(s, ch, log)
				return nil
			})
		}

		_ = g.Wait()
		if launchErr != nil {
			return launchErr
		}
		if s.ctx.Err() != nil {
			return ErrStopped
		}

		for _, ch := range results {
			if err := asm.Add(s.ctx, ch); err != nil {
				if errors.Is(err, context.Canceled) {
					return ErrStopped
				}
				return err
			}
		}
	}

	return nil
}

func (o *Orchestrator) chapterDone(s *Session, ch extract.Chapter, log *ui.Logger) {
	if s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.processed++
	if !ch.OK {
		s.failed++
	}
	detail := "Fetched: " + ch.Link.Label()
	if !ch.OK {
		detail = "Failed: " + ch.Link.Label()
	}
	o.channel.Publish(s.progressLocked(fmt.Sprintf("Chapter %d/%d", s.processed, s.total), detail))
	s.mu.Unlock()

	if !ch.OK {
		log.With(ui.Fields{"chapter": ch.Link.Href}).Warnf("%s: %s", ch.Link.Label(), ch.Body)
	}
	if o.hooks.OnChapter != nil {
		o.hooks.OnChapter(ch)
	}
}

// fetchChapter never fails: fetch errors become a placeholder chapter in
// place.
func (o *Orchestrator) fetchChapter(ctx context.Context, link chapters.Link) extract.Chapter {
	page, err := o.fetchPage(ctx, link.Href)
	if err != nil {
		return extract.Chapter{
			Link:  link,
			Title: link.Label(),
			Body:  fmt.Sprintf("[scrape failed: %s]", fetcher.Reason(err)),
		}
	}

	res := o.extractor.Extract(page.HTML, link.Label())
	return extract.Chapter{Link: link, Title: res.Title, Body: res.Body, OK: res.Found}
}

// fetchPage applies the per-fetch timeout and retry policy.
func (o *Orchestrator) fetchPage(ctx context.Context, target string) (*fetcher.Page, error) {
	var page *fetcher.Page
	err := util.Retry(ctx, o.settings.RetryTimes+1, o.settings.RetryBackoff, fetcher.Retryable, func(int) error {
		fctx, cancel := o.withTimeout(ctx)
		defer cancel()

		p, err := o.fetch.Fetch(fctx, target)
		if err != nil {
			// the per-fetch deadline fired while the session is still live
			if ctx.Err() == nil && errors.Is(fctx.Err(), context.DeadlineExceeded) && !errors.Is(err, fetcher.ErrTimeout) {
				return fmt.Errorf("%w: %w", fetcher.ErrTimeout, err)
			}
			return err
		}
		page = p
		return nil
	})

	return page, err
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.settings.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.settings.Timeout)
}

// pace waits RequestDelay plus jitter, then honors pause. Stop interrupts
// both.
func (o *Orchestrator) pace(s *Session) error {
	d := o.settings.RequestDelay + o.jitter(o.settings.JitterMin, o.settings.JitterMax)
	if d > 0 {
		if err := o.sleep(s.ctx, d); err != nil {
			return ErrStopped
		}
	}
	return s.gate()
}

func (o *Orchestrator) publish(s *Session, status, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.channel.Publish(s.progressLocked(status, detail))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
