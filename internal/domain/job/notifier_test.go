package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWaiter struct {
	calls atomic.Int64
	err   error
}

func (w *fakeWaiter) WaitForNotification(ctx context.Context) error {
	w.calls.Add(1)
	if w.err != nil {
		return w.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestNewNotifierRequiresWaiter(t *testing.T) {
	_, err := NewNotifier(NotifierOptions{})
	require.ErrorIs(t, err, ErrWaiterRequired)
}

func TestNotifierBroadcastsToSubscribers(t *testing.T) {
	n, err := NewNotifier(NotifierOptions{
		Waiter:     &fakeWaiter{},
		WaitWindow: 20 * time.Millisecond,
		Backoff:    time.Millisecond,
	})
	require.NoError(t, err)
	defer n.StopAll()

	unsub1, ch1 := n.Subscribe()
	defer unsub1()
	unsub2, ch2 := n.Subscribe()
	defer unsub2()

	for _, ch := range []<-chan struct{}{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("subscriber never notified")
		}
	}
}

func TestNotifierUnsubscribeClosesChannel(t *testing.T) {
	n, err := NewNotifier(NotifierOptions{Waiter: &fakeWaiter{err: errors.New("down")}})
	require.NoError(t, err)
	defer n.StopAll()

	unsub, ch := n.Subscribe()
	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Unsubscribing twice is safe.
	unsub()
}

func TestNotifierStopAllClosesSubscribers(t *testing.T) {
	n, err := NewNotifier(NotifierOptions{Waiter: &fakeWaiter{}})
	require.NoError(t, err)

	_, ch := n.Subscribe()
	n.StopAll()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after StopAll")
	}
}
