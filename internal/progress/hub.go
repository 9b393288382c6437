package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 256).
//   - MaxBatchEvents: flush once this many displays queue (default 32).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 20ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 256
	defaultMaxBatchEvents = 32
	defaultMaxBatchWait   = 20 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub fans display updates out to registered sinks in emission order. It is
// safe for concurrent use by multiple goroutines and never blocks callers, so
// a slow presenter cannot stall the tracker.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan event.Display
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropLog rate.Sometimes
	dropped atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine using
// the supplied sinks. The returned Hub is immediately ready to accept events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan event.Display, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues a display for batching. It never blocks; if the buffer is full
// the display is dropped and a rate-limited warning is logged.
func (h *Hub) Emit(d event.Display) {
	if h == nil {
		return
	}
	if h.closed.Load() {
		return
	}
	if err := d.Validate(); err != nil {
		h.logger.Debug("discarding invalid display", zap.Error(err))
		return
	}
	select {
	case h.events <- d:
	default:
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("displays dropped due to backpressure", zap.Int64("dropped", h.dropped.Swap(0)))
		})
	}
}

// Close drains remaining displays, flushes sinks, and blocks until the background
// goroutine exits. It is safe to call multiple times; subsequent calls are
// ignored once shutdown begins.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("display hub close wait: %w", ctx.Err())
	}
}

// run batches displays. The flush deadline starts with the first display of
// a batch and is not extended by later ones, bounding presenter latency.
func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]event.Display, 0, h.cfg.MaxBatchEvents)
	deadline := time.NewTimer(h.cfg.MaxBatchWait)
	deadline.Stop()
	defer deadline.Stop()
	for {
		select {
		case d := <-h.events:
			if len(batch) == 0 {
				deadline.Reset(h.cfg.MaxBatchWait)
			}
			batch = append(batch, d)
			if len(batch) >= h.cfg.MaxBatchEvents {
				deadline.Stop()
				batch = h.flush(batch)
			}
		case <-deadline.C:
			batch = h.flush(batch)
		case <-h.stopCh:
			deadline.Stop()
			h.drain(batch)
			return
		}
	}
}

func (h *Hub) drain(batch []event.Display) {
	for {
		select {
		case d := <-h.events:
			batch = append(batch, d)
			if len(batch) >= h.cfg.MaxBatchEvents {
				batch = h.flush(batch)
			}
		default:
			h.flush(batch)
			h.closeSinks()
			return
		}
	}
}

// flush hands a copy of batch to every sink and returns batch emptied.
func (h *Hub) flush(batch []event.Display) []event.Display {
	if len(batch) == 0 {
		return batch
	}
	copyBatch := append([]event.Display(nil), batch...)
	baseCtx := h.cfg.BaseContext
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx := baseCtx
		cancel := func() {}
		if h.cfg.SinkTimeout > 0 {
			ctx, cancel = context.WithTimeout(baseCtx, h.cfg.SinkTimeout)
		}
		if err := sink.Consume(ctx, copyBatch); err != nil {
			h.logger.Warn("display sink consume failed", zap.Error(err))
		}
		cancel()
	}
	return batch[:0]
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("display sink close failed", zap.Error(err))
		}
	}
}
