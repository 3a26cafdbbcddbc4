// Package harness drives one end-to-end scenario: it wires a Source to a Sink,
// records both, pushes a bounded run of synthetic units as fast as the loop
// allows, signals end, and hands back the buffer and trace once the loop drains.
//
// The driver never throttles itself. Enqueue results past the high-water mark
// are counted and logged, not waited on; pacing comes only from the Sink's
// acknowledgments.
package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/streamtrace/internal/clock/system"
	"github.com/JakeFAU/streamtrace/internal/id/uuid"
	"github.com/JakeFAU/streamtrace/internal/loop"
	"github.com/JakeFAU/streamtrace/internal/stream"
	"github.com/JakeFAU/streamtrace/internal/trace"
)

// Scenario defaults.
const (
	DefaultUnits             = 30
	DefaultTemplate          = "<< Data chunk # %d >>"
	DefaultMalformedEncoding = "not-an-encoding"
)

// Config describes one scenario.
type Config struct {
	// Units is how many synthetic units are enqueued.
	Units int
	// Template renders unit k with fmt.Sprintf(Template, k).
	Template string
	// Encoding is the hint attached to every unit; empty means default decode.
	Encoding string
	// MalformedIndex selects one unit to carry MalformedEncoding; negative disables.
	MalformedIndex int
	// MalformedEncoding is the hint injected at MalformedIndex.
	MalformedEncoding string
	// TolerateErrors registers error handlers so decode failures do not abort the run.
	TolerateErrors bool

	Source stream.SourceConfig
	Sink   stream.SinkConfig
}

// DefaultConfig returns the 30-chunk scenario.
func DefaultConfig() Config {
	return Config{
		Units:             DefaultUnits,
		Template:          DefaultTemplate,
		MalformedIndex:    -1,
		MalformedEncoding: DefaultMalformedEncoding,
		Source:            stream.SourceConfig{Name: "source", HighWaterMark: stream.DefaultHighWaterMark},
		Sink:              stream.SinkConfig{Name: "sink", HighWaterMark: stream.DefaultHighWaterMark},
	}
}

// Validate enforces scenario constraints.
func (c Config) Validate() error {
	if c.Units < 0 {
		return errors.New("units must be >= 0")
	}
	if c.Template == "" {
		return errors.New("template is required")
	}
	if c.Source.Name != "" && c.Source.Name == c.Sink.Name {
		return fmt.Errorf("source and sink must have distinct names, both are %q", c.Source.Name)
	}
	if c.MalformedIndex >= 0 {
		if c.MalformedIndex >= c.Units {
			return fmt.Errorf("malformed_index %d out of range for %d units", c.MalformedIndex, c.Units)
		}
		if c.MalformedEncoding == "" {
			return errors.New("malformed_encoding is required when malformed_index is set")
		}
	}
	return nil
}

// Expected returns the buffer a clean run should produce: every unit decoded
// in order, minus any unit whose hint cannot be decoded.
func (c Config) Expected() []string {
	out := make([]string, 0, c.Units)
	for k := range c.Units {
		u := c.unit(k)
		decoded, err := stream.Decode(u.Data(), u.Encoding())
		if err != nil {
			continue
		}
		out = append(out, decoded)
	}
	return out
}

func (c Config) unit(k int) stream.Unit {
	data := []byte(fmt.Sprintf(c.Template, k))
	enc := c.Encoding
	if k == c.MalformedIndex {
		enc = c.MalformedEncoding
	}
	if enc == "" {
		return stream.Bytes(data)
	}
	return stream.Encoded(data, enc)
}

// Result is what one run leaves behind.
type Result struct {
	RunID   string
	Buffer  []string
	Records []trace.Record
	// Accepted counts enqueues that stayed under the source high-water mark.
	Accepted int
	// Rejected counts enqueues that reported backpressure.
	Rejected int
	// Errors counts error notifications in the trace.
	Errors  int
	Ticks   uint64
	Elapsed time.Duration
}

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Option customizes a Harness.
type Option func(*Harness)

// WithClock overrides the clock used for record timestamps and elapsed time.
func WithClock(c trace.Clock) Option {
	return func(h *Harness) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Harness) {
		if g != nil {
			h.ids = g
		}
	}
}

// WithEmitter forwards every captured record, typically to an export.Hub.
func WithEmitter(e trace.Emitter) Option {
	return func(h *Harness) {
		h.emitter = e
	}
}

// Harness runs scenarios.
type Harness struct {
	cfg     Config
	logger  *zap.Logger
	clock   trace.Clock
	ids     IDGenerator
	emitter trace.Emitter
}

// New constructs a Harness for cfg.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Harness{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Run executes the scenario. On failure the partial Result is still returned.
func (h *Harness) Run(ctx context.Context) (Result, error) {
	if err := h.cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid scenario: %w", err)
	}
	runID, err := h.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("run id: %w", err)
	}
	logger := h.logger.With(zap.String("run_id", runID))
	start := h.clock.Now()

	l := loop.New(logger.Named("loop"))
	src := stream.NewSource(l, h.cfg.Source)
	dst := stream.NewSink(l, h.cfg.Sink)
	rec := trace.NewRecorder(trace.WithClock(h.clock), trace.WithEmitter(h.emitter))
	res := Result{RunID: runID}

	if err := h.wire(logger, rec, src, dst); err != nil {
		return res, err
	}
	logger.Info("run started",
		zap.Int("units", h.cfg.Units),
		zap.Stringer("mode", src.Mode()),
		zap.Bool("tolerate_errors", h.cfg.TolerateErrors),
	)

	for k := range h.cfg.Units {
		ok, err := src.Enqueue(h.cfg.unit(k))
		if err != nil {
			return h.collect(res, rec, dst, l, start), fmt.Errorf("enqueue unit %d: %w", k, err)
		}
		if ok {
			res.Accepted++
			continue
		}
		res.Rejected++
		logger.Debug("unit pushed over high-water mark", zap.Int("unit", k), zap.Int("buffered", src.Buffered()))
	}
	src.SignalEnd()

	runErr := l.Run(ctx)
	res = h.collect(res, rec, dst, l, start)
	if runErr != nil {
		logger.Error("run aborted", zap.Error(runErr), zap.Uint64("ticks", res.Ticks))
		return res, fmt.Errorf("run %s: %w", runID, runErr)
	}
	if err := trace.Validate(res.Records); err != nil {
		return res, fmt.Errorf("run %s: %w", runID, err)
	}
	if !slices.Equal(res.Buffer, h.cfg.Expected()) {
		logger.Warn("sink buffer differs from enqueued sequence", zap.Int("buffered", len(res.Buffer)))
	}
	logger.Info("run complete",
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("errors", res.Errors),
		zap.Int("records", len(res.Records)),
		zap.Uint64("ticks", res.Ticks),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (h *Harness) wire(logger *zap.Logger, rec *trace.Recorder, src *stream.Source, dst *stream.Sink) error {
	if err := rec.Attach(src); err != nil {
		return fmt.Errorf("attach recorder: %w", err)
	}
	if err := rec.Attach(dst); err != nil {
		return fmt.Errorf("attach recorder: %w", err)
	}
	if err := dst.On(stream.KindUpdate, func(ev stream.Event) {
		logger.Debug("unit accepted", zap.String("data", ev.(stream.UpdateEvent).Data))
	}); err != nil {
		return err
	}
	if h.cfg.TolerateErrors {
		for _, c := range []interface {
			Name() string
			On(stream.Kind, stream.Handler) error
		}{src, dst} {
			name := c.Name()
			if err := c.On(stream.KindError, func(ev stream.Event) {
				logger.Warn("stream error tolerated", zap.String("component", name), zap.Error(ev.(stream.ErrorEvent).Err))
			}); err != nil {
				return err
			}
		}
	}
	if _, err := stream.Connect(src, dst); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (h *Harness) collect(res Result, rec *trace.Recorder, dst *stream.Sink, l *loop.Loop, start time.Time) Result {
	res.Buffer = dst.Buffer()
	res.Records = rec.Records()
	res.Errors = 0
	for _, r := range res.Records {
		if r.Kind == stream.KindError {
			res.Errors++
		}
	}
	res.Ticks = l.Ticks()
	res.Elapsed = h.clock.Now().Sub(start)
	return res
}
