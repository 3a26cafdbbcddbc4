package stream

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/streamtrace/internal/loop"
)

// DefaultHighWaterMark is the buffered unit count at which Enqueue and Write
// start reporting backpressure.
const DefaultHighWaterMark = 16

// Mode selects how a Source is consumed.
type Mode uint8

// Supported consumption modes.
const (
	// ModeData flows units to the consumer and fires data per unit.
	ModeData Mode = iota
	// ModeReadable fires readable when units become available and expects the
	// consumer to pull with RequestNext.
	ModeReadable
)

func (m Mode) String() string {
	switch m {
	case ModeData:
		return "data"
	case ModeReadable:
		return "readable"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode resolves a consumption mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "data":
		return ModeData, nil
	case "readable":
		return ModeReadable, nil
	default:
		return 0, fmt.Errorf("unknown consumption mode %q", s)
	}
}

// SourceConfig configures a Source.
type SourceConfig struct {
	Name          string
	HighWaterMark int
	Mode          Mode
}

// Source is a pull-based producer fed programmatically.
type Source struct {
	cfg  SourceConfig
	loop *loop.Loop
	em   *emitter

	queue []Unit
	dest  *Sink

	ended         bool
	endScheduled  bool
	destroyed     bool
	flowing       bool
	resumed       bool
	consumed      bool
	stepScheduled bool
	awaitingDrain bool
}

// NewSource constructs a Source bound to l.
func NewSource(l *loop.Loop, cfg SourceConfig) *Source {
	if cfg.Name == "" {
		cfg.Name = "source"
	}
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = DefaultHighWaterMark
	}
	return &Source{
		cfg:  cfg,
		loop: l,
		em:   newEmitter(cfg.Name, SourceKinds),
	}
}

// Name identifies the source in traces.
func (s *Source) Name() string { return s.cfg.Name }

// Kinds lists the notifications a Source emits.
func (s *Source) Kinds() []Kind { return append([]Kind(nil), SourceKinds...) }

// Mode returns the configured consumption mode.
func (s *Source) Mode() Mode { return s.cfg.Mode }

// Buffered returns the number of units waiting to be pulled.
func (s *Source) Buffered() int { return len(s.queue) }

// On registers h for notifications of kind k.
func (s *Source) On(k Kind, h Handler) error { return s.em.on(k, h) }

// Observe registers a passive observer for every notification.
func (s *Source) Observe(h Handler) { s.em.observe(h) }

// Enqueue appends u to the queue and reports whether the queue is still under
// the high-water mark. It fails with ErrInvalidState after SignalEnd or Destroy.
func (s *Source) Enqueue(u Unit) (bool, error) {
	if s.destroyed {
		return false, fmt.Errorf("%w: enqueue on destroyed source %s", ErrInvalidState, s.cfg.Name)
	}
	if s.ended {
		return false, fmt.Errorf("%w: enqueue after end on source %s", ErrInvalidState, s.cfg.Name)
	}
	wasEmpty := len(s.queue) == 0
	s.queue = append(s.queue, u)
	if wasEmpty {
		s.scheduleReadiness()
	}
	return len(s.queue) < s.cfg.HighWaterMark, nil
}

// SignalEnd marks that no further units will arrive. End is emitted once
// every buffered unit has been delivered to a consumer. Repeated calls are no-ops.
func (s *Source) SignalEnd() {
	if s.ended || s.destroyed {
		return
	}
	s.ended = true
	s.maybeEnd()
}

// RequestNext dequeues the next unit. It reports false when the queue is
// empty; the consumer then waits for the next readiness notification. A piped
// source only feeds its destination, so RequestNext fails with
// ErrInvalidState until Unpipe.
func (s *Source) RequestNext() (Unit, bool, error) {
	if s.destroyed {
		return Unit{}, false, fmt.Errorf("%w: read from destroyed source %s", ErrInvalidState, s.cfg.Name)
	}
	if s.dest != nil {
		return Unit{}, false, fmt.Errorf("%w: source %s is piped to %s", ErrInvalidState, s.cfg.Name, s.dest.Name())
	}
	return s.next()
}

func (s *Source) next() (Unit, bool, error) {
	s.consumed = true
	if len(s.queue) == 0 {
		s.maybeEnd()
		return Unit{}, false, nil
	}
	u := s.queue[0]
	s.queue[0] = Unit{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.maybeEnd()
	}
	if s.cfg.Mode == ModeData {
		if err := s.em.emit(DataEvent{Unit: u}); err != nil {
			return u, true, err
		}
	}
	return u, true, nil
}

// Resume starts flowing a data-mode source without a pipe, so data handlers
// alone consume it.
func (s *Source) Resume() error {
	if s.cfg.Mode != ModeData {
		return fmt.Errorf("%w: resume requires data mode on source %s", ErrInvalidState, s.cfg.Name)
	}
	if s.destroyed {
		return fmt.Errorf("%w: resume destroyed source %s", ErrInvalidState, s.cfg.Name)
	}
	s.flowing = true
	s.resumed = true
	s.consumed = true
	if len(s.queue) > 0 {
		s.schedulePump()
		return nil
	}
	s.maybeEnd()
	return nil
}

// Unpipe detaches the destination sink, which emits unpipe.
func (s *Source) Unpipe() error {
	dest := s.unlink()
	if dest == nil {
		return nil
	}
	return dest.detach(s.cfg.Name)
}

// Destroy drops buffered units and emits error (when err is non-nil) and
// close. It is a no-op once the source has terminated.
func (s *Source) Destroy(err error) error {
	if s.destroyed || s.em.done {
		return nil
	}
	s.destroyed = true
	s.queue = nil
	var fatal error
	if dest := s.unlink(); dest != nil {
		fatal = dest.detach(s.cfg.Name)
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

func (s *Source) unlink() *Sink {
	dest := s.dest
	if dest == nil {
		return nil
	}
	s.dest = nil
	dest.src = nil
	s.awaitingDrain = false
	if !s.resumed {
		s.flowing = false
		s.consumed = false
	}
	return dest
}

func (s *Source) attach(dst *Sink) {
	s.dest = dst
	dst.src = s
	s.consumed = true
	if s.cfg.Mode == ModeData {
		s.flowing = true
	}
	if len(s.queue) > 0 {
		s.schedulePump()
		return
	}
	s.maybeEnd()
}

// scheduleReadiness runs when the queue goes from empty to non-empty.
func (s *Source) scheduleReadiness() {
	if s.stepScheduled || s.destroyed {
		return
	}
	if s.cfg.Mode == ModeReadable {
		s.stepScheduled = true
		s.loop.Schedule(s.readableStep)
		return
	}
	if s.flowing {
		s.schedulePump()
	}
}

func (s *Source) schedulePump() {
	if s.stepScheduled || s.destroyed {
		return
	}
	s.stepScheduled = true
	s.loop.Schedule(s.pumpStep)
}

func (s *Source) readableStep() error {
	s.stepScheduled = false
	if s.destroyed || len(s.queue) == 0 {
		return nil
	}
	if err := s.em.emit(ReadableEvent{Buffered: len(s.queue)}); err != nil {
		return err
	}
	return s.pump()
}

func (s *Source) pumpStep() error {
	s.stepScheduled = false
	return s.pump()
}

// pump delivers units to the destination until the queue empties or the sink
// asks for a drain. Without a destination it only runs for a resumed data-mode source.
func (s *Source) pump() error {
	for !s.destroyed && !s.awaitingDrain {
		if s.dest == nil && !s.flowing {
			return nil
		}
		u, ok, err := s.next()
		if err != nil || !ok {
			return err
		}
		if s.dest == nil {
			continue
		}
		accepted, err := s.dest.Write(u)
		if err != nil {
			return err
		}
		if !accepted {
			s.awaitingDrain = true
		}
	}
	return nil
}

func (s *Source) onDestDrain() {
	if !s.awaitingDrain {
		return
	}
	s.awaitingDrain = false
	if len(s.queue) > 0 {
		s.schedulePump()
		return
	}
	s.maybeEnd()
}

func (s *Source) maybeEnd() {
	if !s.ended || s.endScheduled || s.destroyed || !s.consumed || len(s.queue) > 0 {
		return
	}
	s.endScheduled = true
	s.loop.Schedule(s.endStep)
}

func (s *Source) endStep() error {
	if s.destroyed {
		return nil
	}
	if err := s.em.emit(EndEvent{}); err != nil {
		return err
	}
	dest := s.unlink()
	if dest == nil {
		return nil
	}
	if err := dest.detach(s.cfg.Name); err != nil {
		return err
	}
	dest.End()
	return nil
}
