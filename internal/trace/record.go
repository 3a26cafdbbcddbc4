// Package trace records stream notifications into an ordered, structured log
// and renders that log for humans and structured loggers. Rendering is a pure
// function over records; nothing here mutates a Source or Sink.
package trace

import (
	"time"

	"github.com/JakeFAU/streamtrace/internal/stream"
)

// Record is one captured notification.
type Record struct {
	// Component names the Source or Sink that emitted the notification.
	Component string
	// Kind is the notification kind.
	Kind stream.Kind
	// Payload is the typed notification as emitted.
	Payload stream.Event
	// Seq counts notifications per component, starting at 1.
	Seq uint64
	// Index counts notifications across all components, starting at 1.
	Index uint64
	// At is the capture time reported by the recorder's clock.
	At time.Time
}

// Emitter receives records as they are captured.
type Emitter interface {
	Emit(rec Record)
}

// Clock supplies capture timestamps.
type Clock interface {
	Now() time.Time
}
