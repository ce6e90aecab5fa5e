package session

import (
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// ErrStreamStalled is returned when the upstream stops delivering chunks
// for longer than the configured stall timeout mid-turn.
var ErrStreamStalled = errors.New("stream stalled: no data within timeout")

// stallGuard wraps a response body and closes it when no chunk arrives
// within d, turning an indefinite network hang into a read error the
// session treats as a transport failure.
type stallGuard struct {
	rc      io.ReadCloser
	d       time.Duration
	timer   *time.Timer
	stalled atomic.Bool
}

func newStallGuard(rc io.ReadCloser, d time.Duration) *stallGuard {
	g := &stallGuard{rc: rc, d: d}
	g.timer = time.AfterFunc(d, func() {
		g.stalled.Store(true)
		_ = rc.Close()
	})
	return g
}

func (g *stallGuard) Read(p []byte) (int, error) {
	n, err := g.rc.Read(p)
	if err == nil {
		g.timer.Reset(g.d)
		return n, nil
	}
	if g.stalled.Load() {
		return n, ErrStreamStalled
	}
	return n, err
}

func (g *stallGuard) Close() error {
	g.timer.Stop()
	return g.rc.Close()
}
