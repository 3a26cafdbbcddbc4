package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/streamtrace/internal/trace"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: records Emit can queue before it waits on the hub (default 4096).
//   - MaxBatchRecords: flush once this many records queue (default 256).
//   - MaxBatchWait: flush a partial batch this long after its first record (default 100ms).
//   - SinkTimeout: per-sink timeout while flushing (default 5s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize      int
	MaxBatchRecords int
	MaxBatchWait    time.Duration
	SinkTimeout     time.Duration
	BaseContext     context.Context
	Logger          *zap.Logger
}

const (
	defaultBufferSize      = 4096
	defaultMaxBatchRecords = 256
	defaultMaxBatchWait    = 100 * time.Millisecond
	defaultSinkTimeout     = 5 * time.Second
)

// Hub batches trace records off the run loop and fans them out to sinks.
//
// A trace is only useful complete, so Emit never drops: once the buffer is
// full it waits for the batching goroutine. Records emitted concurrently with
// Close may be discarded; emit everything before closing.
type Hub struct {
	cfg       Config
	sinks     []Sink
	records   chan trace.Record
	stopCh    chan struct{}
	doneCh    chan struct{}
	logger    *zap.Logger
	forwarded atomic.Int64
	closed    atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine for sinks. The returned Hub is
// immediately ready to accept records.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchRecords <= 0 {
		cfg.MaxBatchRecords = defaultMaxBatchRecords
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
		records: make(chan trace.Record, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
	}
	go h.run()
	return h
}

// Emit queues rec for batching, waiting for room when the buffer is full.
// Invalid records are logged and discarded; after Close Emit is a no-op.
func (h *Hub) Emit(rec trace.Record) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := validate(rec); err != nil {
		h.logger.Debug("discarding invalid trace record", zap.Error(err))
		return
	}
	select {
	case h.records <- rec:
	case <-h.stopCh:
	}
}

// Forwarded reports how many records have been handed to the sinks so far.
// After Close returns it covers every record the hub accepted.
func (h *Hub) Forwarded() int64 {
	if h == nil {
		return 0
	}
	return h.forwarded.Load()
}

// Close drains remaining records, flushes and closes sinks, and blocks until
// the background goroutine exits. Subsequent calls only wait.
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
		return fmt.Errorf("export hub close wait: %w", ctx.Err())
	}
}

func validate(rec trace.Record) error {
	if rec.Component == "" {
		return errors.New("component is required")
	}
	if rec.Payload == nil || rec.Payload.Kind() != rec.Kind {
		return fmt.Errorf("payload does not match kind %s", rec.Kind)
	}
	if rec.Seq == 0 {
		return errors.New("seq must be >= 1")
	}
	return nil
}

// run owns the pending batch. The flush deadline is armed by the first record
// of a batch and disarmed by every flush.
func (h *Hub) run() {
	defer close(h.doneCh)
	var (
		batch    []trace.Record
		deadline <-chan time.Time
	)
	for {
		select {
		case rec := <-h.records:
			if len(batch) == 0 {
				deadline = time.After(h.cfg.MaxBatchWait)
			}
			batch = append(batch, rec)
			if len(batch) >= h.cfg.MaxBatchRecords {
				batch, deadline = h.flush(batch), nil
			}
		case <-deadline:
			batch, deadline = h.flush(batch), nil
		case <-h.stopCh:
			h.drain(batch)
			return
		}
	}
}

func (h *Hub) drain(batch []trace.Record) {
	for {
		select {
		case rec := <-h.records:
			batch = append(batch, rec)
			if len(batch) >= h.cfg.MaxBatchRecords {
				batch = h.flush(batch)
			}
		default:
			h.flush(batch)
			h.closeSinks()
			return
		}
	}
}

// flush hands batch to every sink and returns a fresh batch. Sinks may keep
// the slice they receive but must not modify it.
func (h *Hub) flush(batch []trace.Record) []trace.Record {
	if len(batch) == 0 {
		return batch
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("trace sink consume failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		cancel()
	}
	h.forwarded.Add(int64(len(batch)))
	return make([]trace.Record, 0, h.cfg.MaxBatchRecords)
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
			h.logger.Warn("trace sink close failed", zap.Error(err))
		}
	}
}
