package hotkey

import (
	"context"
	"time"
)

// Toggles turns each press of hk into one toggle event. Presses closer
// together than debounce count once; key releases are drained and ignored.
// The returned channel closes when ctx is done.
func Toggles(ctx context.Context, hk Hotkey, debounce time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		var last time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-hk.Keyup():
			case <-hk.Keydown():
				now := time.Now()
				if !last.IsZero() && now.Sub(last) < debounce {
					continue
				}
				last = now
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
