package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case s, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func TestChannel_ReplaysLastOnAttach(t *testing.T) {
	c := NewChannel()
	c.Publish(Snapshot{Kind: KindProgress, Current: 1, Total: 10})
	c.Publish(Snapshot{Kind: KindProgress, Current: 2, Total: 10})

	sub := c.Attach()
	defer sub.Detach()

	first := recv(t, sub)
	assert.Equal(t, 2, first.Current)

	c.Publish(Snapshot{Kind: KindProgress, Current: 3, Total: 10})
	assert.Equal(t, 3, recv(t, sub).Current)
}

func TestChannel_AttachWithoutHistory(t *testing.T) {
	c := NewChannel()
	sub := c.Attach()
	defer sub.Detach()

	select {
	case <-sub.C():
		t.Fatal("unexpected snapshot")
	default:
	}
}

func TestChannel_ReconnectGetsLatest(t *testing.T) {
	c := NewChannel()
	first := c.Attach()
	c.Publish(Snapshot{Kind: KindProgress, Current: 4, Total: 9})
	first.Detach()

	c.Publish(Snapshot{Kind: KindProgress, Current: 5, Total: 9})

	second := c.Attach()
	defer second.Detach()
	assert.Equal(t, 5, recv(t, second).Current)
}

func TestChannel_AttachReplacesPrevious(t *testing.T) {
	c := NewChannel()
	a := c.Attach()
	b := c.Attach()
	defer b.Detach()

	_, ok := <-a.C()
	assert.False(t, ok, "previous subscriber should be closed")

	c.Publish(Snapshot{Kind: KindProgress, Current: 1})
	assert.Equal(t, 1, recv(t, b).Current)

	// detaching a replaced subscription must not drop the current one
	a.Detach()
	c.Publish(Snapshot{Kind: KindProgress, Current: 2})
	assert.Equal(t, 2, recv(t, b).Current)
}

func TestChannel_TerminalNeverDropped(t *testing.T) {
	c := NewChannel()
	sub := c.Attach()
	defer sub.Detach()

	for i := 0; i < subscriberBuffer*3; i++ {
		c.Publish(Snapshot{Kind: KindProgress, Current: i})
	}
	c.Publish(Snapshot{Kind: KindComplete, Status: "done"})

	var last Snapshot
	for i := 0; i < subscriberBuffer; i++ {
		last = recv(t, sub)
	}
	assert.Equal(t, KindComplete, last.Kind)
	assert.Equal(t, "done", last.Status)
}

func TestChannel_Last(t *testing.T) {
	c := NewChannel()
	_, ok := c.Last()
	assert.False(t, ok)

	c.Publish(Snapshot{Kind: KindError, Status: "boom"})
	got, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "boom", got.Status)
	assert.False(t, got.Time.IsZero())
}

func TestForward_StopsAfterTerminal(t *testing.T) {
	c := NewChannel()
	sub := c.Attach()

	var seen []Kind
	done := make(chan struct{})
	go func() {
		Forward(context.Background(), sub, ObserverFunc(func(s Snapshot) { seen = append(seen, s.Kind) }))
		close(done)
	}()

	c.Publish(Snapshot{Kind: KindProgress})
	c.Publish(Snapshot{Kind: KindStopped})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward did not return")
	}
	assert.Equal(t, []Kind{KindProgress, KindStopped}, seen)
}

func TestSnapshot_Percent(t *testing.T) {
	assert.Equal(t, 0.0, Snapshot{}.Percent())
	assert.Equal(t, 50.0, Snapshot{Current: 5, Total: 10}.Percent())
	assert.Equal(t, 100.0, Snapshot{Current: 12, Total: 10}.Percent())
}

type fakeControls struct {
	paused  bool
	stopped bool
}

func (f *fakeControls) TogglePause() bool { f.paused = !f.paused; return f.paused }
func (f *fakeControls) Stop()             { f.stopped = true }

func TestDispatch(t *testing.T) {
	ctrl := &fakeControls{}

	require.NoError(t, Dispatch(ctrl, Command{Action: ActionTogglePause}))
	assert.True(t, ctrl.paused)
	require.NoError(t, Dispatch(ctrl, Command{Action: ActionStop}))
	assert.True(t, ctrl.stopped)

	err := Dispatch(ctrl, Command{Action: "rewind"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}
