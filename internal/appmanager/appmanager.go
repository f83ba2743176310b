// Package appmanager coordinates a single graceful-shutdown sequence across
// every subsystem that wants a say in it — stop accepting new orders, tell
// the exchange blocker to stop processing, close database handles — in a
// fixed order, exactly once, regardless of how many goroutines ask for
// shutdown concurrently.
package appmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ShutdownFunc performs one step of graceful shutdown, e.g. ExchangeBlocker
// draining its event queue, a cache flush, a database handle Close.
type ShutdownFunc func(ctx context.Context) error

// ApplicationManager coordinates graceful shutdown. It mirrors the
// source's ApplicationManager/EngineContext split, but drops the Weak
// engine-context indirection: a Go ApplicationManager lives exactly as long
// as the process does, so there is no dangling-reference case to guard
// against the way the original's Arc/Weak pair does.
type ApplicationManager struct {
	cancel context.CancelFunc
	log    zerolog.Logger

	mu    sync.Mutex
	steps []namedStep

	once sync.Once
	done chan struct{}
	err  error
}

type namedStep struct {
	name string
	fn   ShutdownFunc
}

// New returns an ApplicationManager that cancels cancel once graceful
// shutdown runs to completion.
func New(cancel context.CancelFunc, logger zerolog.Logger) *ApplicationManager {
	return &ApplicationManager{cancel: cancel, log: logger, done: make(chan struct{})}
}

// RegisterShutdownStep adds fn to the sequence RunGracefulShutdown executes,
// in registration order.
func (a *ApplicationManager) RegisterShutdownStep(name string, fn ShutdownFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.steps = append(a.steps, namedStep{name: name, fn: fn})
}

// SpawnGracefulShutdown starts graceful shutdown in the background and
// returns immediately, for callers (e.g. a signal handler) that can't block
// waiting for every step to finish.
func (a *ApplicationManager) SpawnGracefulShutdown(ctx context.Context, reason string) {
	go func() {
		if err := a.RunGracefulShutdown(ctx, reason); err != nil {
			a.log.Error().Err(err).Str("reason", reason).Msg("appmanager: graceful shutdown finished with errors")
		}
	}()
}

// RunGracefulShutdown runs every registered step in order and cancels the
// root context once they've all returned. It only ever executes once; a
// second call (concurrent or later) just waits for the first to finish and
// returns nil, even if the first run returned an error — the caller that
// actually triggered shutdown already has that error from its own call.
func (a *ApplicationManager) RunGracefulShutdown(ctx context.Context, reason string) error {
	ran := false
	a.once.Do(func() {
		ran = true
		a.log.Info().Str("reason", reason).Msg("appmanager: graceful shutdown requested")
		defer close(a.done)
		defer a.cancel()

		a.mu.Lock()
		steps := append([]namedStep(nil), a.steps...)
		a.mu.Unlock()

		for _, step := range steps {
			if err := step.fn(ctx); err != nil {
				a.log.Error().Err(err).Str("step", step.name).Msg("appmanager: shutdown step failed")
				a.err = fmt.Errorf("shutdown step %q: %w", step.name, err)
			}
		}
	})
	<-a.done
	if !ran {
		return nil
	}
	return a.err
}

// Done returns a channel closed once graceful shutdown has fully completed.
func (a *ApplicationManager) Done() <-chan struct{} {
	return a.done
}
