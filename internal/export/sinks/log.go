// Package sinks implements concrete trace consumers for the export hub:
// structured logging and Prometheus collectors. Each sink satisfies the
// export.Sink interface and is safe for repeated Consume/Close cycles.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/streamtrace/internal/trace"
)

// LogSink writes each record as a structured log entry.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each record in the batch using trace.Fields.
func (s *LogSink) Consume(_ context.Context, batch []trace.Record) error {
	for _, rec := range batch {
		s.logger.Info("stream event", trace.Fields(rec)...)
	}
	return nil
}

// Close implements the Sink interface; it flushes the logger.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}
