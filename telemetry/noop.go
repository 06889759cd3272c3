package telemetry

import "context"

// NoopLogger discards everything. Used as the construction default so
// components never need a nil check before logging.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, ...string)           {}
func (NoopMetrics) RecordTimer(string, float64, ...string) {}
func (NoopMetrics) RecordGauge(string, float64, ...string) {}

// NoopTracer returns a no-op span without starting real tracing.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) AddEvent(string, ...any) {}
func (noopSpan) SetStatus(bool, string)  {}
func (noopSpan) RecordError(error)       {}
func (noopSpan) End()                    {}
