package trace

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/streamtrace/internal/stream"
)

// Describe renders one record as a human-readable line.
func Describe(rec Record) string {
	return fmt.Sprintf(
		"#%d Event '%s' received on %s: event data = %s",
		rec.Index, rec.Kind, rec.Component, payloadJSON(rec.Payload),
	)
}

// DescribeAll renders every record with Describe.
func DescribeAll(records []Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = Describe(rec)
	}
	return out
}

// Fields renders a record as structured logging fields.
func Fields(rec Record) []zap.Field {
	fields := []zap.Field{
		zap.String("component", rec.Component),
		zap.Stringer("kind", rec.Kind),
		zap.Uint64("seq", rec.Seq),
		zap.Uint64("index", rec.Index),
		zap.Time("at", rec.At),
	}
	switch p := rec.Payload.(type) {
	case stream.DataEvent:
		fields = append(fields, zap.String("data", p.Unit.String()), zap.Int("bytes", p.Unit.Len()))
	case stream.UpdateEvent:
		fields = append(fields, zap.String("data", p.Data))
	case stream.ReadableEvent:
		fields = append(fields, zap.Int("buffered", p.Buffered))
	case stream.ErrorEvent:
		fields = append(fields, zap.Error(p.Err))
	case stream.PipeEvent:
		fields = append(fields, zap.String("source", p.Source))
	case stream.UnpipeEvent:
		fields = append(fields, zap.String("source", p.Source))
	}
	return fields
}

// Log writes every record to logger at debug level.
func Log(logger *zap.Logger, records []Record) {
	if logger == nil {
		return
	}
	for _, rec := range records {
		logger.Debug("stream event", Fields(rec)...)
	}
}

func payloadJSON(ev stream.Event) string {
	var v any
	switch p := ev.(type) {
	case stream.DataEvent:
		v = p.Unit.String()
	case stream.UpdateEvent:
		v = p
	case stream.ReadableEvent:
		v = map[string]int{"buffered": p.Buffered}
	case stream.ErrorEvent:
		if p.Err != nil {
			v = p.Err.Error()
		}
	case stream.PipeEvent:
		v = p.Source
	case stream.UnpipeEvent:
		v = p.Source
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%q", err.Error())
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
