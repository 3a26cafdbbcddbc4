package stream

import (
	"fmt"

	"github.com/JakeFAU/streamtrace/internal/loop"
)

// SinkConfig configures a Sink.
type SinkConfig struct {
	Name          string
	HighWaterMark int
}

// Sink is a push-based consumer. It accepts one unit per loop task, in write
// order, decodes it, buffers the result, and emits update before acknowledging.
type Sink struct {
	cfg  SinkConfig
	loop *loop.Loop
	em   *emitter
	src  *Source

	pending []Unit
	buffer  []string

	processing      bool
	needDrain       bool
	ending          bool
	finishScheduled bool
	destroyed       bool
}

// NewSink constructs a Sink bound to l.
func NewSink(l *loop.Loop, cfg SinkConfig) *Sink {
	if cfg.Name == "" {
		cfg.Name = "sink"
	}
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = DefaultHighWaterMark
	}
	return &Sink{
		cfg:  cfg,
		loop: l,
		em:   newEmitter(cfg.Name, SinkKinds),
	}
}

// Name identifies the sink in traces.
func (s *Sink) Name() string { return s.cfg.Name }

// Kinds lists the notifications a Sink emits.
func (s *Sink) Kinds() []Kind { return append([]Kind(nil), SinkKinds...) }

// On registers h for notifications of kind k.
func (s *Sink) On(k Kind, h Handler) error { return s.em.on(k, h) }

// Observe registers a passive observer for every notification.
func (s *Sink) Observe(h Handler) { s.em.observe(h) }

// Pending returns the number of written units not yet acknowledged.
func (s *Sink) Pending() int { return len(s.pending) }

// Buffer returns a copy of the decoded units accepted so far. The result is
// never nil.
func (s *Sink) Buffer() []string {
	out := make([]string, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Write queues u for acceptance. It reports false once the pending count
// reaches the high-water mark, after which a drain follows the last
// acknowledgment.
func (s *Sink) Write(u Unit) (bool, error) {
	if s.destroyed {
		return false, fmt.Errorf("%w: write to destroyed sink %s", ErrInvalidState, s.cfg.Name)
	}
	if s.ending {
		return false, fmt.Errorf("%w: write after end on sink %s", ErrInvalidState, s.cfg.Name)
	}
	s.pending = append(s.pending, u)
	if !s.processing {
		s.processing = true
		s.loop.Schedule(s.processStep)
	}
	if len(s.pending) >= s.cfg.HighWaterMark {
		s.needDrain = true
		return false, nil
	}
	return true, nil
}

// End signals no further writes. Finish is emitted after the last
// acknowledgment. Repeated calls are no-ops.
func (s *Sink) End() {
	if s.ending || s.destroyed {
		return
	}
	s.ending = true
	s.maybeFinish()
}

// Destroy drops pending units and emits error (when err is non-nil) and close.
// It is a no-op once the sink has terminated.
func (s *Sink) Destroy(err error) error {
	if s.destroyed || s.em.done {
		return nil
	}
	s.destroyed = true
	s.pending = nil
	var fatal error
	if src := s.src; src != nil {
		src.unlink()
		fatal = s.detach(src.Name())
	}
	if err != nil {
		if emitErr := s.em.emit(ErrorEvent{Err: err}); emitErr != nil && fatal == nil {
			fatal = emitErr
		}
	}
	if emitErr := s.em.emit(CloseEvent{}); emitErr != nil && fatal == nil {
		fatal = emitErr
	}
	return fatal
}

// accept decodes u with hint, buffers it, and emits update. done is called
// before accept returns whether or not decoding succeeded; a unit that fails
// to decode is dropped and reported as an error notification.
func (s *Sink) accept(u Unit, hint string, done func()) error {
	defer done()
	decoded, err := Decode(u.data, hint)
	if err != nil {
		return s.em.emit(ErrorEvent{Err: err})
	}
	s.buffer = append(s.buffer, decoded)
	return s.em.emit(UpdateEvent{Data: decoded})
}

func (s *Sink) processStep() error {
	if s.destroyed || len(s.pending) == 0 {
		s.processing = false
		return nil
	}
	u := s.pending[0]
	ack := func() {
		s.pending[0] = Unit{}
		s.pending = s.pending[1:]
	}
	if err := s.accept(u, u.encoding, ack); err != nil {
		return err
	}
	return s.afterWrite()
}

func (s *Sink) afterWrite() error {
	if len(s.pending) > 0 {
		s.loop.Schedule(s.processStep)
		return nil
	}
	s.processing = false
	if s.needDrain && !s.destroyed {
		s.needDrain = false
		if err := s.em.emit(DrainEvent{}); err != nil {
			return err
		}
		if s.src != nil {
			s.src.onDestDrain()
		}
	}
	s.maybeFinish()
	return nil
}

func (s *Sink) maybeFinish() {
	if !s.ending || s.destroyed || s.processing || s.finishScheduled || len(s.pending) > 0 {
		return
	}
	s.finishScheduled = true
	s.loop.Schedule(func() error {
		if s.destroyed {
			return nil
		}
		return s.em.emit(FinishEvent{})
	})
}

func (s *Sink) detach(source string) error {
	return s.em.emit(UnpipeEvent{Source: source})
}
