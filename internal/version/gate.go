// Package version tracks client/server version compatibility.
//
// The gate owns the mismatch flag consulted by the transport layer before
// every non-exempt call. It learns the remote version from a periodic probe,
// from version fields piggybacked on successful responses, and from 409
// mismatch rejections.
package version

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is a snapshot of the gate's version knowledge.
// Mismatch is true iff Remote is known and differs from Local.
type State struct {
	Local    string
	Remote   string // empty until first observation
	Mismatch bool
}

// Callback is invoked with (remote, local) on every mismatch transition,
// both set and clear.
type Callback func(remote, local string)

// Prober issues the lightweight version probe. Implemented by the transport
// client; the probe endpoint is exempt from the gate.
type Prober interface {
	ProbeVersion(ctx context.Context) (string, error)
}

type subscription struct {
	fn Callback
}

// Gate tracks the remote service version against the local client version.
type Gate struct {
	local  string
	logger *slog.Logger

	mu       sync.Mutex
	remote   string
	mismatch bool
	subs     []*subscription // registration order
	notified MismatchRecorder

	cancelProbe context.CancelFunc
	wg          sync.WaitGroup
}

// MismatchRecorder is an optional interface for recording gate metrics.
type MismatchRecorder interface {
	RecordVersionMismatch(ctx context.Context, mismatched bool)
}

// NewGate creates a gate for the given local client version.
func NewGate(local string, metrics MismatchRecorder) *Gate {
	return &Gate{
		local:    local,
		logger:   slog.With("component", "versiongate"),
		notified: metrics,
	}
}

// State returns a snapshot of the current version state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{Local: g.local, Remote: g.remote, Mismatch: g.mismatch}
}

// Mismatch reports whether a known-incompatible server version is active.
func (g *Gate) Mismatch() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mismatch
}

// Subscribe registers a callback for mismatch transitions and returns an
// unsubscribe func. If a mismatch is already active, the callback is invoked
// synchronously with the current values before Subscribe returns, so late
// subscribers are not blind to existing state.
func (g *Gate) Subscribe(cb Callback) func() {
	sub := &subscription{fn: cb}

	g.mu.Lock()
	g.subs = append(g.subs, sub)
	mismatched, remote := g.mismatch, g.remote
	g.mu.Unlock()

	if mismatched {
		cb(remote, g.local)
	}

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, s := range g.subs {
			if s == sub {
				g.subs = append(g.subs[:i], g.subs[i+1:]...)
				return
			}
		}
	}
}

// Observe records a remote version observation and recomputes the mismatch
// flag. Subscribers are notified only when the flag flips; a remote version
// change that leaves an existing mismatch in place is recorded silently.
// Empty observations are ignored.
func (g *Gate) Observe(remote string) {
	if remote == "" {
		return
	}

	g.mu.Lock()
	prev := g.mismatch
	g.remote = remote
	g.mismatch = remote != g.local
	flipped := g.mismatch != prev
	subs := make([]*subscription, 0, len(g.subs))
	if flipped {
		subs = append(subs, g.subs...)
	}
	mismatched := g.mismatch
	g.mu.Unlock()

	if !flipped {
		return
	}

	if mismatched {
		g.logger.Warn("Server version mismatch detected", "remote", remote, "local", g.local)
	} else {
		g.logger.Info("Server version compatible again", "remote", remote)
	}
	if g.notified != nil {
		g.notified.RecordVersionMismatch(context.Background(), mismatched)
	}

	// Callbacks run outside the lock so they may call back into the gate.
	for _, sub := range subs {
		sub.fn(remote, g.local)
	}
}

// Start runs an immediate probe and then re-probes on a fixed interval until
// Stop is called or the parent context is cancelled. Probe failures are
// swallowed: an absent or erroring probe endpoint leaves prior state intact.
func (g *Gate) Start(ctx context.Context, prober Prober, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	if g.cancelProbe != nil {
		g.mu.Unlock()
		cancel()
		return // already running
	}
	g.cancelProbe = cancel
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		g.checkRemoteVersion(ctx, prober)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.checkRemoteVersion(ctx, prober)
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to exit.
func (g *Gate) Stop() {
	g.mu.Lock()
	cancel := g.cancelProbe
	g.cancelProbe = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		g.wg.Wait()
	}
}

// checkRemoteVersion performs one probe. Nothing here is allowed to escape
// the loop: errors are logged at debug level and a panicking subscriber
// must not take the probe goroutine down with it.
func (g *Gate) checkRemoteVersion(ctx context.Context, prober Prober) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Version check panicked", "panic", r)
		}
	}()

	remote, err := prober.ProbeVersion(ctx)
	if err != nil {
		g.logger.Debug("Version probe failed", "error", err)
		return
	}
	g.Observe(remote)
}
