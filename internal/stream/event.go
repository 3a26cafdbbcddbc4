// Package stream defines the pull-based Source, the push-based Sink, the pipe
// that connects them, and the typed lifecycle notifications both emit.
//
// All state changes run on a loop.Loop. A Source fixes one consumption mode at
// construction: in ModeData the pipe consumes by flowing and a data event
// fires per unit; in ModeReadable a readable event fires whenever the queue
// becomes non-empty and the pipe pulls the queue. RequestNext is the manual
// pull for an unpiped Source.
package stream

import "fmt"

// Kind enumerates lifecycle notifications.
type Kind uint8

// Supported notification kinds.
const (
	KindReadable Kind = iota + 1
	KindData
	KindEnd
	KindClose
	KindError
	KindPipe
	KindUnpipe
	KindDrain
	KindFinish
	KindUpdate

	kindCount
)

var kindNames = [kindCount]string{
	KindReadable: "readable",
	KindData:     "data",
	KindEnd:      "end",
	KindClose:    "close",
	KindError:    "error",
	KindPipe:     "pipe",
	KindUnpipe:   "unpipe",
	KindDrain:    "drain",
	KindFinish:   "finish",
	KindUpdate:   "update",
}

// SourceKinds lists the notifications a Source emits.
var SourceKinds = []Kind{KindReadable, KindData, KindClose, KindError, KindEnd}

// SinkKinds lists the notifications a Sink emits.
var SinkKinds = []Kind{KindPipe, KindUnpipe, KindDrain, KindClose, KindError, KindFinish, KindUpdate}

func (k Kind) String() string {
	if k == 0 || k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Terminal reports whether no further notification may follow k on the same component.
func (k Kind) Terminal() bool {
	return k == KindEnd || k == KindClose || k == KindFinish
}

// ParseKind resolves a notification name.
func ParseKind(name string) (Kind, error) {
	for k := KindReadable; k < kindCount; k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, name)
}

// Event is a typed notification payload.
type Event interface {
	Kind() Kind
}

// Handler receives notifications. The payload carries its own Kind.
type Handler func(Event)

// ReadableEvent announces units are available to pull.
type ReadableEvent struct {
	Buffered int
}

// DataEvent carries a unit pulled from a Source in data mode.
type DataEvent struct {
	Unit Unit
}

// EndEvent signals no more units will ever arrive.
type EndEvent struct{}

// CloseEvent signals the component was destroyed.
type CloseEvent struct{}

// ErrorEvent carries a component-local failure.
type ErrorEvent struct {
	Err error
}

// PipeEvent announces a Source attached to a Sink.
type PipeEvent struct {
	Source string
}

// UnpipeEvent announces a Source detached from a Sink.
type UnpipeEvent struct {
	Source string
}

// DrainEvent signals the Sink has room again after a rejected write.
type DrainEvent struct{}

// FinishEvent signals every unit was processed and the Sink ended.
type FinishEvent struct{}

// UpdateEvent carries the decoded form of one accepted unit.
type UpdateEvent struct {
	Data string `json:"data"`
}

// Kind implements Event.
func (ReadableEvent) Kind() Kind { return KindReadable }

// Kind implements Event.
func (DataEvent) Kind() Kind { return KindData }

// Kind implements Event.
func (EndEvent) Kind() Kind { return KindEnd }

// Kind implements Event.
func (CloseEvent) Kind() Kind { return KindClose }

// Kind implements Event.
func (ErrorEvent) Kind() Kind { return KindError }

// Kind implements Event.
func (PipeEvent) Kind() Kind { return KindPipe }

// Kind implements Event.
func (UnpipeEvent) Kind() Kind { return KindUnpipe }

// Kind implements Event.
func (DrainEvent) Kind() Kind { return KindDrain }

// Kind implements Event.
func (FinishEvent) Kind() Kind { return KindFinish }

// Kind implements Event.
func (UpdateEvent) Kind() Kind { return KindUpdate }

// Observable is implemented by components whose notifications can be recorded.
type Observable interface {
	Name() string
	Kinds() []Kind
	Observe(h Handler)
}
