package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/brogergvhs/noveld/internal/progress"
	"github.com/brogergvhs/noveld/internal/volume"
)

// State is the orchestrator's lifecycle phase. It returns to StateIdle once
// a session's terminal snapshot is published.
type State int

const (
	// StateIdle means no session is running and a new one may start.
	StateIdle State = iota
	// StateResolving covers fetching and parsing the index page.
	StateResolving
	// StateFetching covers chapter batches being fetched and assembled.
	StateFetching
	// StatePaused holds new fetches until resumed; in-flight ones finish.
	StatePaused
	// StateCompleting flushes the last partial volume.
	StateCompleting
	// StateStopped is the terminal phase after a stop request.
	StateStopped
	// StateFailed is the terminal phase after an index or write error.
	StateFailed
)

// String is the lowercase name used in logs and the status endpoint.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateFetching:
		return "fetching"
	case StatePaused:
		return "paused"
	case StateCompleting:
		return "completing"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a finished session.
type Result struct {
	Final    progress.Snapshot
	Book     string
	Chapters int
	Failed   int
	Volumes  []volume.Flushed
	Err      error
}

// Session is one scrape run. Callers get a read-only handle; pause and stop go
// through the Orchestrator.
type Session struct {
	ID        string
	PageURL   string
	Selection []int
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	cond          *sync.Cond
	paused        bool
	stopRequested bool
	book          string
	total         int
	processed     int
	failed        int

	done   chan struct{}
	result Result
}

func newSession(parent context.Context, id, pageURL string, selection []int) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:        id,
		PageURL:   pageURL,
		Selection: selection,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Done is closed once the terminal snapshot has been published.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends and returns its result.
func (s *Session) Wait() Result {
	<-s.done
	return s.result
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Session) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// Running reports whether the terminal snapshot is still pending.
func (s *Session) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// gate blocks while the session is paused. It returns ErrStopped once a stop
// has been requested, paused or not.
func (s *Session) gate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.paused && !s.stopRequested {
		s.cond.Wait()
	}
	if s.stopRequested || s.ctx.Err() != nil {
		return ErrStopped
	}
	return nil
}

func (s *Session) togglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = !s.paused
	if !s.paused {
		s.cond.Broadcast()
	}
	return s.paused
}

func (s *Session) stop() {
	s.mu.Lock()
	s.stopRequested = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
}

// progressLocked builds a progress snapshot; s.mu must be held.
func (s *Session) progressLocked(status, detail string) progress.Snapshot {
	return progress.Snapshot{
		Kind:      progress.KindProgress,
		SessionID: s.ID,
		Current:   s.processed,
		Total:     s.total,
		Status:    status,
		Detail:    detail,
		BookTitle: s.book,
		Paused:    s.paused,
	}
}
