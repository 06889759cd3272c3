package telemetry

import (
	"context"
	"time"
)

// OperationType names the kinds of externally observable operations this
// runtime performs.
type OperationType string

const (
	OpRegister      OperationType = "register"
	OpHeartbeat     OperationType = "heartbeat"
	OpProxyCall     OperationType = "proxy_call"
	OpDispatchEvent OperationType = "dispatch_event"
	OpToolExecute   OperationType = "tool_execute"
	OpLLMComplete   OperationType = "llm_complete"
	OpParseResponse OperationType = "parse_response"
)

// OperationOutcome is the result recorded against an OperationEvent.
type OperationOutcome string

const (
	OutcomeSuccess OperationOutcome = "success"
	OutcomeFailure OperationOutcome = "failure"
)

// OperationEvent describes one completed operation for logging and metrics.
type OperationEvent struct {
	Type       OperationType
	Outcome    OperationOutcome
	DurationMs float64
	Err        error
	Attrs      []any // additional key-value pairs appended to the log line
}

// Observability bundles the Logger/Metrics/Tracer trio and exposes the
// "wrap every operation with span + log + metric" helpers used by the
// registry client and the agent runtime's tool wrapper. The proxy accepts
// one but emits nothing through it.
type Observability struct {
	Bundle
}

// New constructs an Observability from a Bundle, defaulting any unset
// member to its no-op implementation.
func New(b Bundle) *Observability {
	if b.Logger == nil {
		b.Logger = NoopLogger{}
	}
	if b.Metrics == nil {
		b.Metrics = NoopMetrics{}
	}
	if b.Tracer == nil {
		b.Tracer = NoopTracer{}
	}
	return &Observability{Bundle: b}
}

// StartSpan begins a span named after the operation type.
func (o *Observability) StartSpan(ctx context.Context, op OperationType) (context.Context, Span) {
	return o.Tracer.Start(ctx, string(op))
}

// EndSpan finalizes a span according to the operation's outcome.
func (o *Observability) EndSpan(span Span, ev OperationEvent) {
	if ev.Err != nil {
		span.RecordError(ev.Err)
		span.SetStatus(false, ev.Err.Error())
	} else {
		span.SetStatus(true, "")
	}
	span.End()
}

// LogOperation emits a structured log line describing the operation.
func (o *Observability) LogOperation(ctx context.Context, ev OperationEvent) {
	kv := append([]any{"op", string(ev.Type), "outcome", string(ev.Outcome), "duration_ms", ev.DurationMs}, ev.Attrs...)
	if ev.Err != nil {
		kv = append(kv, "error", ev.Err.Error())
		o.Logger.Error(ctx, "mesh operation failed", kv...)
		return
	}
	o.Logger.Info(ctx, "mesh operation completed", kv...)
}

// RecordOperationMetrics increments a counter and records a duration
// histogram for the operation, tagged with its type and outcome.
func (o *Observability) RecordOperationMetrics(ev OperationEvent) {
	tags := []string{"op=" + string(ev.Type), "outcome=" + string(ev.Outcome)}
	o.Metrics.IncCounter(string(ev.Type)+".executions", tags...)
	o.Metrics.RecordTimer(string(ev.Type)+".duration", ev.DurationMs, tags...)
}

// Track is a convenience wrapper: it starts a span, runs fn, and on return
// reports the span/log/metric trio in one call, mirroring the
// span-then-deferred-finish idiom used throughout runtime/registry.
func (o *Observability) Track(ctx context.Context, op OperationType, attrs []any, fn func(ctx context.Context) error) error {
	ctx, span := o.StartSpan(ctx, op)
	start := time.Now()
	err := fn(ctx)
	ev := OperationEvent{
		Type:       op,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Err:        err,
		Attrs:      attrs,
	}
	if err != nil {
		ev.Outcome = OutcomeFailure
	} else {
		ev.Outcome = OutcomeSuccess
	}
	o.EndSpan(span, ev)
	o.LogOperation(ctx, ev)
	o.RecordOperationMetrics(ev)
	return err
}
