// Package progress carries scrape telemetry to at most one attached observer
// and routes pause/stop commands back to the running session.
package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
	KindStopped  Kind = "stopped"
)

// Snapshot is the state report published after every chapter and once at the
// end of a session.
type Snapshot struct {
	Kind      Kind      `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	BookTitle string    `json:"bookTitle,omitempty"`
	Paused    bool      `json:"paused"`
	Time      time.Time `json:"time"`
}

// Terminal reports whether s ends a session.
func (s Snapshot) Terminal() bool {
	return s.Kind != KindProgress
}

// Percent returns completion in [0,100]; zero when the total is unknown.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	p := float64(s.Current) * 100 / float64(s.Total)
	if p > 100 {
		p = 100
	}
	return p
}

const subscriberBuffer = 16

// Subscription is one attached observer's feed.
type Subscription struct {
	ch     chan Snapshot
	detach func()
}

// C is closed when the subscription is detached or replaced.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Detach stops delivery. It is safe to call more than once.
func (s *Subscription) Detach() { s.detach() }

// Channel retains the latest snapshot and fans it out to the current
// subscriber.
type Channel struct {
	mu   sync.Mutex
	last *Snapshot
	sub  *Subscription
}

func NewChannel() *Channel { return &Channel{} }

// Publish stores snap as the latest snapshot and offers it to the
// subscriber. Progress snapshots are dropped when the subscriber is behind;
// terminal snapshots evict the oldest queued one instead.
func (c *Channel) Publish(snap Snapshot) {
	if snap.Time.IsZero() {
		snap.Time = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = &snap
	if c.sub == nil {
		return
	}

	if !snap.Terminal() {
		select {
		case c.sub.ch <- snap:
		default:
		}
		return
	}

	for {
		select {
		case c.sub.ch <- snap:
			return
		default:
		}
		select {
		case <-c.sub.ch:
		default:
		}
	}
}

// Attach replaces any previous subscriber. The retained snapshot, if any, is
// queued before the call returns so it always precedes newer ones.
func (c *Channel) Attach() *Subscription {
	sub := &Subscription{ch: make(chan Snapshot, subscriberBuffer)}

	var once sync.Once
	sub.detach = func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.sub == sub {
				c.sub = nil
			}
			close(sub.ch)
		})
	}

	c.mu.Lock()
	prev := c.sub
	c.sub = sub
	if c.last != nil {
		sub.ch <- *c.last
	}
	c.mu.Unlock()

	if prev != nil {
		prev.Detach()
	}

	return sub
}

// Last returns the retained snapshot.
func (c *Channel) Last() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Snapshot{}, false
	}
	return *c.last, true
}

// Observer consumes snapshots, e.g. a terminal progress bar.
type Observer interface {
	Observe(Snapshot)
}

type ObserverFunc func(Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

// Forward delivers the subscription to obs until it is detached, a terminal
// snapshot has been observed, or ctx is done. It detaches on return.
func Forward(ctx context.Context, sub *Subscription, obs Observer) {
	defer sub.Detach()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			obs.Observe(snap)
			if snap.Terminal() {
				return
			}
		}
	}
}

// Controls is the inbound half of the channel.
type Controls interface {
	// TogglePause flips the pause flag and reports the new state.
	TogglePause() bool
	Stop()
}

const (
	ActionTogglePause = "togglePause"
	ActionStop        = "stop"
)

var ErrUnknownAction = errors.New("unknown action")

// Command is an inbound control message.
type Command struct {
	Action string `json:"action"`
}

// Dispatch applies cmd to ctrl.
func Dispatch(ctrl Controls, cmd Command) error {
	switch strings.TrimSpace(cmd.Action) {
	case ActionTogglePause:
		ctrl.TogglePause()
	case ActionStop:
		ctrl.Stop()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	return nil
}
