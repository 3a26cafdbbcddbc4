package stream

import (
	"errors"
	"fmt"
)

// Connect pipes src into dst and returns dst. The sink emits pipe
// immediately; units start moving on the next loop tick. A source has at most
// one destination and a sink at most one source.
func Connect(src *Source, dst *Sink) (*Sink, error) {
	if src == nil || dst == nil {
		return dst, errors.New("connect requires a source and a sink")
	}
	if src.dest != nil || dst.src != nil {
		return dst, fmt.Errorf("%w: %s -> %s", ErrAlreadyPiped, src.Name(), dst.Name())
	}
	if src.destroyed || src.em.done {
		return dst, fmt.Errorf("%w: source %s has terminated", ErrInvalidState, src.Name())
	}
	if dst.destroyed || dst.ending {
		return dst, fmt.Errorf("%w: sink %s has ended", ErrInvalidState, dst.Name())
	}
	if err := dst.em.emit(PipeEvent{Source: src.Name()}); err != nil {
		return dst, err
	}
	src.attach(dst)
	return dst, nil
}
