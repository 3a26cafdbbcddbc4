package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/streamtrace/internal/stream"
	"github.com/JakeFAU/streamtrace/internal/trace"
)

// PrometheusSink exports per-component notification counters and unit sizes.
type PrometheusSink struct {
	events    *prometheus.CounterVec
	errors    *prometheus.CounterVec
	unitBytes *prometheus.HistogramVec
	updates   *prometheus.CounterVec
	completed *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamtrace_events_total",
			Help: "Notifications captured, partitioned by component and kind.",
		}, []string{"component", "kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamtrace_errors_total",
			Help: "Error notifications captured per component.",
		}, []string{"component"}),
		unitBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamtrace_unit_bytes",
			Help:    "Size of units pulled from sources.",
			Buckets: prometheus.ExponentialBuckets(8, 4, 8),
		}, []string{"component"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamtrace_decoded_bytes_total",
			Help: "Bytes of decoded data accepted by sinks.",
		}, []string{"component"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamtrace_components_terminated_total",
			Help: "Components that reached a terminal notification, by kind.",
		}, []string{"kind"}),
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.errors,
		s.unitBytes,
		s.updates,
		s.completed,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register trace collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []trace.Record) error {
	for _, rec := range batch {
		s.events.WithLabelValues(rec.Component, rec.Kind.String()).Inc()
		switch p := rec.Payload.(type) {
		case stream.DataEvent:
			s.unitBytes.WithLabelValues(rec.Component).Observe(float64(p.Unit.Len()))
		case stream.UpdateEvent:
			s.updates.WithLabelValues(rec.Component).Add(float64(len(p.Data)))
		case stream.ErrorEvent:
			s.errors.WithLabelValues(rec.Component).Inc()
		}
		if rec.Kind.Terminal() {
			s.completed.WithLabelValues(rec.Kind.String()).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
