package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-overlay/internal/clock/system"
	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/storage/memory"
)

func TestLoopHandleEventAndQuery(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	loop := NewLoop(h.engine, LoopConfig{})
	ctx := context.Background()
	loop.Start(ctx)
	t.Cleanup(func() { _ = loop.Close(ctx) })

	out, err := loop.HandleEvent(ctx, downloadEnv("d", 1, 2))
	require.NoError(t, err)
	require.Equal(t, ActionCreated, out.Action)

	require.NoError(t, loop.Submit(downloadEnv("d", 2, 2)))

	var disp event.Display
	require.Eventually(t, func() bool {
		err := loop.Do(ctx, func(_ context.Context, e *Engine) {
			disp, _ = e.Display()
		})
		return err == nil && disp.Progress == 1000
	}, time.Second, 5*time.Millisecond)
}

func TestLoopFiresTimers(t *testing.T) {
	t.Parallel()
	out := &recorder{}
	cfg := DefaultConfig()
	cfg.Freshness = 40 * time.Millisecond
	cfg.RemovalGrace = 10 * time.Millisecond
	engine, err := New(cfg, Deps{
		Clock:     system.New(),
		Apps:      memory.NewAppConfigStore(),
		Publisher: out,
	})
	require.NoError(t, err)
	loop := NewLoop(engine, LoopConfig{})
	ctx := context.Background()
	loop.Start(ctx)
	t.Cleanup(func() { _ = loop.Close(ctx) })

	_, err = loop.HandleEvent(ctx, downloadEnv("d", 5, 10))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		all := out.all()
		return len(all) == 2 && all[1].Removal
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLoopSubmitBackpressure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	loop := NewLoop(h.engine, LoopConfig{InboxSize: 1})

	require.NoError(t, loop.Submit(downloadEnv("a", 1, 2)))
	require.ErrorIs(t, loop.Submit(downloadEnv("b", 1, 2)), ErrBusy)
	require.Error(t, loop.Submit(event.Envelope{}))
}

func TestLoopClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	loop := NewLoop(h.engine, LoopConfig{})
	ctx := context.Background()
	loop.Start(ctx)

	require.NoError(t, loop.Close(ctx))
	require.NoError(t, loop.Close(ctx))
	require.ErrorIs(t, loop.Submit(downloadEnv("a", 1, 2)), ErrClosed)
	_, err := loop.HandleEvent(ctx, downloadEnv("a", 1, 2))
	require.ErrorIs(t, err, ErrClosed)
}

func TestLoopStopsWithContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	loop := NewLoop(h.engine, LoopConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, loop.Close(waitCtx))
}
