package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StoredTrace is the W3C trace context persisted next to an outbox row. The publisher restores it so the
// Kafka producer span joins the trace of the request that wrote the event.
type StoredTrace struct {
	Traceparent string
	Tracestate  string
}

// CaptureTrace reads the trace context carried by ctx. Both fields are empty outside a span.
func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Traceparent: carrier.Get("traceparent"), Tracestate: carrier.Get("tracestate")}
}

func (t StoredTrace) Empty() bool {
	return t.Traceparent == ""
}

// Context returns ctx with t as its remote parent. A row written without a trace leaves ctx as is.
func (t StoredTrace) Context(ctx context.Context) context.Context {
	if t.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": t.Traceparent}
	if t.Tracestate != "" {
		carrier.Set("tracestate", t.Tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
