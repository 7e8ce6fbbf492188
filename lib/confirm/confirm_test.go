package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 15 * time.Second

// startAwait begins a confirmation window on a mock clock and returns once
// its timer is armed.
func startAwait(ctx context.Context, t *testing.T, g *Gate, mClock *quartz.Mock, key Key) <-chan error {
	t.Helper()
	trap := mClock.Trap().NewTimer("confirm")
	defer trap.Close()

	done := make(chan error, 1)
	go func() {
		done <- g.Await(ctx, key, window)
	}()
	call := trap.MustWait(ctx)
	call.MustRelease(ctx)
	assert.Equal(t, window, call.Duration)
	return done
}

func newMockGate(t *testing.T) (*Gate, *quartz.Mock) {
	mClock := quartz.NewMock(t)
	g := NewGate()
	g.SetClock(mClock)
	return g, mClock
}

func TestAwaitConfirmed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, mClock := newMockGate(t)
	key := Key{ChatID: -100, UserID: 7}

	done := startAwait(ctx, t, g, mClock, key)
	assert.True(t, g.Pending(key))
	assert.True(t, g.Confirm(key))
	require.NoError(t, <-done)
	assert.False(t, g.Pending(key))
}

func TestAwaitTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, mClock := newMockGate(t)
	key := Key{ChatID: -100, UserID: 7}

	done := startAwait(ctx, t, g, mClock, key)
	mClock.Advance(window - time.Second).MustWait(ctx)
	assert.True(t, g.Pending(key), "still open before the window ends")

	mClock.Advance(time.Second).MustWait(ctx)
	require.ErrorIs(t, <-done, ErrTimeout)
	assert.False(t, g.Confirm(key))
}

func TestAwaitOtherUserDoesNotConfirm(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, mClock := newMockGate(t)
	key := Key{ChatID: -100, UserID: 7}

	done := startAwait(ctx, t, g, mClock, key)
	assert.False(t, g.Confirm(Key{ChatID: -100, UserID: 8}))
	assert.False(t, g.Confirm(Key{ChatID: -101, UserID: 7}))

	mClock.Advance(window).MustWait(ctx)
	require.ErrorIs(t, <-done, ErrTimeout)
}

func TestAwaitRejectsSecondWindow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, mClock := newMockGate(t)
	key := Key{ChatID: 1, UserID: 1}

	done := startAwait(ctx, t, g, mClock, key)
	err := g.Await(ctx, key, window)
	require.ErrorIs(t, err, ErrPending)

	g.Confirm(key)
	require.NoError(t, <-done)
}

func TestAwaitContextCancelled(t *testing.T) {
	g, _ := newMockGate(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Await(ctx, Key{ChatID: 1, UserID: 2}, window)
	require.ErrorIs(t, err, context.Canceled)
}
