package hotkey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keydown struct{}

func TestPump_FiresOncePerEventUntilClose(t *testing.T) {
	down := make(chan keydown, 3)
	for i := 0; i < 3; i++ {
		down <- keydown{}
	}
	close(down)

	var n int
	pump(context.Background(), down, func() { n++ })
	assert.Equal(t, 3, n)
}

func TestPump_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pump(ctx, make(chan keydown), func() { t.Error("no event was sent") })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func TestServe_BusyHandlerDoesNotBlockOtherBindings(t *testing.T) {
	gate := make(chan struct{})
	handled := make(chan Action, 4)
	d := &dispatcher{handler: func(_ context.Context, a Action) {
		if a == ActionCapture {
			<-gate
		}
		handled <- a
	}}

	capture := make(chan keydown, 1)
	paste := make(chan keydown, 1)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- serve(ctx, d, []source[keydown]{
			{action: ActionCapture, down: capture},
			{action: ActionPasteNext, down: paste},
		})
	}()

	capture <- keydown{}
	paste <- keydown{}
	select {
	case a := <-handled:
		assert.Equal(t, ActionPasteNext, a)
	case <-time.After(2 * time.Second):
		t.Fatal("paste-next waited for the capture handler")
	}

	cancel()
	require.NoError(t, <-served)

	waited := make(chan struct{})
	go func() {
		d.wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("wait returned while a handler was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	<-waited
	assert.Equal(t, ActionCapture, <-handled)
}

func TestServe_ReturnsWhenEverySourceCloses(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Action
	)
	d := &dispatcher{handler: func(_ context.Context, a Action) {
		mu.Lock()
		seen = append(seen, a)
		mu.Unlock()
	}}

	exit := make(chan keydown, 1)
	exit <- keydown{}
	close(exit)
	alt := make(chan keydown)
	close(alt)

	require.NoError(t, serve(context.Background(), d, []source[keydown]{
		{action: ActionExit, down: exit},
		{action: ActionPasteNextAlt, down: alt},
	}))
	d.wait()

	assert.Equal(t, []Action{ActionExit}, seen)
}

func TestServe_HandlersGetTheCallerContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "agent")

	got := make(chan any, 1)
	d := &dispatcher{handler: func(hctx context.Context, _ Action) {
		got <- hctx.Value(key{})
	}}

	down := make(chan keydown, 1)
	down <- keydown{}
	close(down)
	require.NoError(t, serve(ctx, d, []source[keydown]{{action: ActionCapture, down: down}}))
	d.wait()
	assert.Equal(t, "agent", <-got)
}
