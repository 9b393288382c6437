package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/store"
)

// ErrClosed is returned once the loop has shut down.
var ErrClosed = errors.New("tracker loop closed")

// ErrBusy is returned by Submit when the inbox is full.
var ErrBusy = errors.New("tracker inbox full")

const (
	defaultInboxSize = 1024
	dropLogInterval  = 5 * time.Second
)

// LoopConfig controls the inbox of a Loop.
type LoopConfig struct {
	InboxSize int
	Logger    *zap.Logger
}

// Loop owns an Engine on a single goroutine. Events, queries and timer
// firings are serialized through it, so the Engine never needs a lock.
type Loop struct {
	engine  *Engine
	inbox   chan func(context.Context)
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropLog rate.Sometimes
	dropped atomic.Int64
	closed  atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
}

// NewLoop wraps engine. Call Start to begin processing.
func NewLoop(engine *Engine, cfg LoopConfig) *Loop {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		engine:  engine,
		inbox:   make(chan func(context.Context), cfg.InboxSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
}

// Start launches the loop goroutine. ctx is handed to every engine call;
// cancelling it stops the loop.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.run(ctx)
	})
}

// Submit enqueues env without waiting for the outcome. It never blocks.
func (l *Loop) Submit(env event.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	return l.post(func(ctx context.Context) {
		if _, err := l.engine.HandleEvent(ctx, env); err != nil {
			l.logger.Debug("event rejected", zap.String("source_id", env.ID), zap.Error(err))
		}
	})
}

// HandleEvent applies env on the loop and waits for the outcome.
func (l *Loop) HandleEvent(ctx context.Context, env event.Envelope) (Outcome, error) {
	var (
		out  Outcome
		hErr error
	)
	err := l.Do(ctx, func(ctx context.Context, e *Engine) {
		out, hErr = e.HandleEvent(ctx, env)
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, hErr
}

// ApplyAppConfig forwards an AppConfig change to the engine.
func (l *Loop) ApplyAppConfig(ctx context.Context, cfg store.AppConfig) error {
	return l.Do(ctx, func(ctx context.Context, e *Engine) {
		e.ApplyAppConfig(ctx, cfg)
	})
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func(context.Context, *Engine)) error {
	done := make(chan struct{})
	task := func(loopCtx context.Context) {
		defer close(done)
		fn(loopCtx, l.engine)
	}
	if l.closed.Load() {
		return ErrClosed
	}
	select {
	case l.inbox <- task:
	case <-l.doneCh:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("tracker enqueue: %w", ctx.Err())
	}
	select {
	case <-done:
		return nil
	case <-l.doneCh:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("tracker wait: %w", ctx.Err())
	}
}

// Close stops the loop and waits for it to exit. Queued work that has not
// started is discarded.
func (l *Loop) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopCh)
	})
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tracker close wait: %w", ctx.Err())
	}
}

func (l *Loop) post(task func(context.Context)) error {
	if l.closed.Load() {
		return ErrClosed
	}
	select {
	case l.inbox <- task:
		return nil
	default:
		l.dropped.Add(1)
		l.dropLog.Do(func() {
			l.logger.Warn("tracker events dropped due to backpressure", zap.Int64("dropped", l.dropped.Swap(0)))
		})
		return ErrBusy
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)
	wake := time.NewTimer(time.Hour)
	wake.Stop()
	defer wake.Stop()
	for {
		l.arm(wake)
		select {
		case task := <-l.inbox:
			task(ctx)
		case <-wake.C:
			l.engine.RunDue(ctx)
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// arm points the wake timer at the engine's next deadline.
func (l *Loop) arm(wake *time.Timer) {
	next, ok := l.engine.NextDeadline()
	if !ok {
		wake.Stop()
		return
	}
	wake.Reset(max(next.Sub(l.engine.clock.Now()), 0))
}
