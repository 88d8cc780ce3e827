// Package lifecycle releases sessions whose owner went away without ending
// them: a closed tab, an idle workspace, an interrupted terminal or a
// stopping process.
package lifecycle

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"smartpdf-web/internal/pkg/logger"
)

const logModule = "LifecycleGuard"

// Reason names the unload signal that triggered a release.
type Reason string

const (
	ReasonBeacon      Reason = "beacon"
	ReasonGoingAway   Reason = "going_away"
	ReasonIdleExpired Reason = "idle_expired"
	ReasonSignal      Reason = "signal"
	ReasonEOF         Reason = "eof"
	ReasonShutdown    Reason = "shutdown"
)

// Abandoner is the forced-reset side of a session store.
type Abandoner interface {
	Abandon() (sessionID string, live bool)
}

// Terminator sends a terminate request without waiting for its outcome.
type Terminator interface {
	TerminateDetached(sessionID string)
}

type drainer interface {
	Drain(timeout time.Duration) bool
}

type Guard struct {
	terminator Terminator
	logger     logger.ILogger
	released   atomic.Int64
}

func NewGuard(terminator Terminator, log logger.ILogger) *Guard {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Guard{terminator: terminator, logger: log}
}

// Release forces store back to Idle and, if a backend session was live,
// dispatches a detached terminate for it. It never waits on the network.
func (g *Guard) Release(reason Reason, store Abandoner) (string, bool) {
	sessionID, live := store.Abandon()
	if !live {
		g.logger.Debug(logModule, "Nothing to release", map[string]interface{}{"reason": string(reason)})
		return "", false
	}

	g.terminator.TerminateDetached(sessionID)
	g.released.Add(1)

	g.logger.Info(logModule, "Session released", map[string]interface{}{
		"reason":     string(reason),
		"session_id": sessionID,
	})
	return sessionID, true
}

// Released counts sessions handed to a detached terminate so far.
func (g *Guard) Released() int64 {
	return g.released.Load()
}

// Wait gives in-flight detached terminates up to timeout to finish. It
// reports false if some were still running when the grace period ended.
func (g *Guard) Wait(timeout time.Duration) bool {
	d, ok := g.terminator.(drainer)
	if !ok {
		return true
	}
	if d.Drain(timeout) {
		return true
	}
	g.logger.Warn(logModule, "Detached terminates still running after grace period", map[string]interface{}{
		"timeout": timeout.String(),
	})
	return false
}

// Watch releases store on the first value from signals and then closes the
// returned channel. Cancelling ctx stops watching without releasing.
func (g *Guard) Watch(ctx context.Context, store Abandoner, signals <-chan os.Signal) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-signals:
			g.logger.Info(logModule, "Received signal", map[string]interface{}{"signal": sig.String()})
			g.Release(ReasonSignal, store)
			close(done)
		case <-ctx.Done():
		}
	}()
	return done
}
