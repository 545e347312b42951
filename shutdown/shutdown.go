// Package shutdown turns interrupt and termination signals into context
// cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Context returns a copy of parent that is cancelled on the first signal
// delivered by Notify. The returned cancel also stops signal delivery.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	Notify(ch)
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
