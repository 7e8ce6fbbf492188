// Package confirm implements a short confirmation window for destructive
// commands: a caller waits for the same user to answer in the same chat.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
)

var (
	ErrTimeout = errors.New("confirmation timed out")
	ErrPending = errors.New("confirmation already pending")
)

type Key struct {
	ChatID int64
	UserID int64
}

type Gate struct {
	mu      sync.Mutex
	clock   quartz.Clock
	pending map[Key]chan struct{}
}

func NewGate() *Gate {
	return &Gate{
		clock:   quartz.NewReal(),
		pending: make(map[Key]chan struct{}),
	}
}

func (g *Gate) SetClock(c quartz.Clock) {
	g.clock = c
}

// Await blocks until Confirm is called for key, the timeout elapses or ctx is
// done. Only one confirmation per key can be pending at a time.
func (g *Gate) Await(ctx context.Context, key Key, timeout time.Duration) error {
	g.mu.Lock()
	if _, ok := g.pending[key]; ok {
		g.mu.Unlock()
		return ErrPending
	}
	ch := make(chan struct{})
	g.pending[key] = ch
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending[key] == ch {
			delete(g.pending, key)
		}
		g.mu.Unlock()
	}()

	timer := g.clock.NewTimer(timeout, "confirm")
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return fmt.Errorf("awaiting confirmation: %w", ctx.Err())
	}
}

// Confirm releases a pending Await for key. It reports false when nothing
// was waiting.
func (g *Gate) Confirm(key Key) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.pending[key]
	if !ok {
		return false
	}
	delete(g.pending, key)
	close(ch)
	return true
}

// Pending reports whether key has an open confirmation window.
func (g *Gate) Pending(key Key) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[key]
	return ok
}
