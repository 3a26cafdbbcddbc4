// Package export ships captured trace records off the run loop. A Hub batches
// records on a background goroutine and fans them out to pluggable sinks such
// as structured logs or Prometheus collectors.
package export

import (
	"context"

	"github.com/JakeFAU/streamtrace/internal/trace"
)

// Sink consumes batches of trace records. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []trace.Record) error
	Close(ctx context.Context) error
}

// Hub satisfies trace.Emitter so a Recorder can forward records directly.
var _ trace.Emitter = (*Hub)(nil)
