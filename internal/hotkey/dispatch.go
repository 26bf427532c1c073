package hotkey

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// dispatcher runs a Handler per press. Each call gets its own goroutine.
type dispatcher struct {
	handler  Handler
	inflight sync.WaitGroup
}

func (d *dispatcher) fire(ctx context.Context, a Action) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.handler(ctx, a)
	}()
}

// wait blocks until every handler started by fire has returned.
func (d *dispatcher) wait() { d.inflight.Wait() }

// source is one binding's stream of key-down events.
type source[E any] struct {
	action Action
	down   <-chan E
}

// pump calls fire once per event on down until ctx is done or down closes.
func pump[E any](ctx context.Context, down <-chan E, fire func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-down:
			if !ok {
				return
			}
			fire()
		}
	}
}

// serve pumps every source until ctx is done or all of them close. Handlers
// receive ctx and may still be running when serve returns.
func serve[E any](ctx context.Context, d *dispatcher, sources []source[E]) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sources {
		g.Go(func() error {
			pump(gctx, s.down, func() {
				hkLog.Debug("hotkey_pressed", slog.String("action", s.action.String()))
				d.fire(ctx, s.action)
			})
			return nil
		})
	}
	return g.Wait()
}
