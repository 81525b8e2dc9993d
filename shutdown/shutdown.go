// Package shutdown turns the platform's termination signals into context
// cancellation.
package shutdown

import (
	"context"
	"os/signal"
)

// Context is cancelled on the first termination signal. Call stop to release
// the signal handler; a second signal then kills the process as usual.
func Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// WithQuit is Context plus a quit func that cancels ctx while keeping the
// signal handler installed, so a signal during teardown is still caught.
// stop releases the handler.
func WithQuit(parent context.Context) (ctx context.Context, quit context.CancelFunc, stop func()) {
	sigCtx, sigStop := Context(parent)
	ctx, cancel := context.WithCancel(sigCtx)
	return ctx, cancel, func() {
		cancel()
		sigStop()
	}
}
