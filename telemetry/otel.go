package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/dhyansraj/mcp-mesh"

// Instruments bundles the live OTEL trace/metric/log providers and
// implements Logger, Metrics, and Tracer directly.
type Instruments struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger otellog.Logger

	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram
	proxyCalls     metric.Int64Counter
	proxyDuration  metric.Float64Histogram
}

// Init wires trace, metric, and log providers backed by OTLP HTTP
// exporters, reading configuration from the standard OTEL_EXPORTER_OTLP_*
// environment variables. Returns a shutdown function the caller must
// invoke on process exit.
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, fmt.Errorf("telemetry: log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		if err := mp.Shutdown(ctx); err != nil {
			return err
		}
		return lp.Shutdown(ctx)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	toolExecutions, err := meter.Int64Counter("mesh.tool.executions",
		metric.WithDescription("Tool execution count"), metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}
	toolDuration, err := meter.Float64Histogram("mesh.tool.duration",
		metric.WithDescription("Tool execution duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	proxyCalls, err := meter.Int64Counter("mesh.proxy.calls",
		metric.WithDescription("Outbound proxy call count"), metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	proxyDuration, err := meter.Float64Histogram("mesh.proxy.duration",
		metric.WithDescription("Outbound proxy call duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		tracer:         tracer,
		meter:          meter,
		logger:         logger,
		toolExecutions: toolExecutions,
		toolDuration:   toolDuration,
		proxyCalls:     proxyCalls,
		proxyDuration:  proxyDuration,
	}, nil
}

// Start implements Tracer.
func (i *Instruments) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := i.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// IncCounter implements Metrics, routing by name to the matching OTEL
// counter; unrecognized names are dropped rather than creating instruments
// at runtime (OTEL instrument creation is meant to happen once, at init).
func (i *Instruments) IncCounter(name string, tags ...string) {
	attrs := tagsToAttrSet(tags)
	switch name {
	case "tool_execute.executions":
		i.toolExecutions.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	case "proxy_call.executions":
		i.proxyCalls.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
}

func (i *Instruments) RecordTimer(name string, durationMs float64, tags ...string) {
	attrs := tagsToAttrSet(tags)
	switch name {
	case "tool_execute.duration":
		i.toolDuration.Record(context.Background(), durationMs, metric.WithAttributes(attrs...))
	case "proxy_call.duration":
		i.proxyDuration.Record(context.Background(), durationMs, metric.WithAttributes(attrs...))
	}
}

func (i *Instruments) RecordGauge(string, float64, ...string) {}

// Debug/Info/Warn/Error implement Logger by emitting OTEL log records at
// the matching severity.
func (i *Instruments) Debug(ctx context.Context, msg string, keyvals ...any) {
	i.emit(ctx, otellog.SeverityDebug, msg, keyvals)
}

func (i *Instruments) Info(ctx context.Context, msg string, keyvals ...any) {
	i.emit(ctx, otellog.SeverityInfo, msg, keyvals)
}

func (i *Instruments) Warn(ctx context.Context, msg string, keyvals ...any) {
	i.emit(ctx, otellog.SeverityWarn, msg, keyvals)
}

func (i *Instruments) Error(ctx context.Context, msg string, keyvals ...any) {
	i.emit(ctx, otellog.SeverityError, msg, keyvals)
}

func (i *Instruments) emit(ctx context.Context, sev otellog.Severity, msg string, keyvals []any) {
	var rec otellog.Record
	rec.SetTimestamp(time.Now())
	rec.SetSeverity(sev)
	rec.SetBody(otellog.StringValue(msg))
	rec.AddAttributes(kvSliceToAttrs(keyvals)...)
	i.logger.Emit(ctx, rec)
}

func kvSliceToAttrs(keyvals []any) []otellog.KeyValue {
	attrs := make([]otellog.KeyValue, 0, len(keyvals)/2)
	for idx := 0; idx+1 < len(keyvals); idx += 2 {
		key, ok := keyvals[idx].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, otellog.String(key, fmt.Sprint(keyvals[idx+1])))
	}
	return attrs
}

// tagsToAttrSet converts "key=value" style tag strings into OTEL attributes;
// a tag without "=" becomes a boolean-style presence attribute.
func tagsToAttrSet(tags []string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(tags))
	for _, t := range tags {
		k, v, found := splitTag(t)
		if !found {
			out = append(out, attribute.Bool(t, true))
			continue
		}
		out = append(out, attribute.String(k, v))
	}
	return out
}

func splitTag(t string) (key, value string, ok bool) {
	for idx := 0; idx < len(t); idx++ {
		if t[idx] == '=' {
			return t[:idx], t[idx+1:], true
		}
	}
	return "", "", false
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) AddEvent(name string, keyvals ...any) {
	s.span.AddEvent(name)
	_ = keyvals
}

func (s *otelSpan) SetStatus(ok bool, description string) {
	if ok {
		return
	}
	s.span.SetStatus(codes.Error, description)
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func (s *otelSpan) End() {
	s.span.End()
}
