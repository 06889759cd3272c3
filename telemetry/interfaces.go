// Package telemetry defines the Logger/Metrics/Tracer abstraction shared by
// every component that performs externally observable work, plus a no-op
// default and an OpenTelemetry-backed implementation.
package telemetry

import "context"

// Logger emits structured key-value log lines.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers, and gauges.
type Metrics interface {
	IncCounter(name string, tags ...string)
	RecordTimer(name string, durationMs float64, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Span represents one in-flight unit of tracing work.
type Span interface {
	AddEvent(name string, keyvals ...any)
	SetStatus(ok bool, description string)
	RecordError(err error)
	End()
}

// Tracer starts spans.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Bundle groups the three telemetry interfaces so components can accept a
// single construction argument.
type Bundle struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// NoopBundle returns a Bundle whose every member discards its input.
func NoopBundle() Bundle {
	return Bundle{Logger: NoopLogger{}, Metrics: NoopMetrics{}, Tracer: NoopTracer{}}
}
