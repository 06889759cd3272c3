package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/telemetry"
)

// StreamWriter is the narrow surface Publisher needs from a stream client,
// satisfied by *redis.Client; tests substitute a fake.
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher enqueues SpanRecords to a shared Redis Stream. Publication is
// best-effort: failures are logged and swallowed, never surfaced to the
// calling tool handler.
type Publisher struct {
	writer    StreamWriter
	streamKey string
	enabled   bool
	obs       *telemetry.Observability
}

// DefaultStreamKey is the Redis Stream name span records are XAdd'd to when
// the caller does not override it via MESH_TRACE_STREAM.
const DefaultStreamKey = "mesh:spans"

// NewPublisher constructs a Publisher. enabled comes from the tracing
// environment flag; when false, PublishSpan is a no-op and IsAvailable
// reports false.
func NewPublisher(writer StreamWriter, streamKey string, enabled bool, obs *telemetry.Observability) *Publisher {
	if streamKey == "" {
		streamKey = DefaultStreamKey
	}
	if obs == nil {
		obs = telemetry.New(telemetry.Bundle{})
	}
	return &Publisher{writer: writer, streamKey: streamKey, enabled: enabled, obs: obs}
}

// IsAvailable reports whether the publisher was initialized with tracing
// enabled and has a writer to publish to.
func (p *Publisher) IsAvailable() bool {
	return p.enabled && p.writer != nil
}

// PublishSpan enqueues span as a flat string-map stream record. Never
// blocks the caller beyond the enqueue call itself, and never
// returns an error the caller must handle — failures are logged instead.
func (p *Publisher) PublishSpan(ctx context.Context, span mesh.SpanRecord) {
	if !p.IsAvailable() {
		return
	}
	fields, err := recordFields(span)
	if err != nil {
		p.obs.Logger.Error(ctx, "mesh: failed to encode span record", "error", err.Error())
		return
	}
	if _, err := p.writer.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		Values: fields,
	}).Result(); err != nil {
		p.obs.Logger.Warn(ctx, "mesh: failed to publish span", "error", err.Error())
	}
}

// recordFields renders a SpanRecord into the flat string-map shape trace
// stream consumers expect; every value is a string, absent parent spans
// and errors are the literal "null".
func recordFields(s mesh.SpanRecord) (map[string]any, error) {
	deps, err := json.Marshal(s.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("marshal dependencies: %w", err)
	}
	positions, err := json.Marshal(s.MeshPositions)
	if err != nil {
		return nil, fmt.Errorf("marshal mesh_positions: %w", err)
	}

	parentSpan := "null"
	if s.ParentSpan != "" {
		parentSpan = s.ParentSpan
	}
	errStr := "null"
	if s.Error != "" {
		errStr = s.Error
	}

	return map[string]any{
		"trace_id":              s.TraceID,
		"span_id":               s.SpanID,
		"parent_span":           parentSpan,
		"function_name":         s.FunctionName,
		"start_time":            s.StartTime,
		"end_time":              s.EndTime,
		"duration_ms":           fmt.Sprintf("%.2f", s.DurationMs),
		"success":               boolStr(s.Success),
		"error":                 errStr,
		"result_type":           s.ResultType,
		"args_count":            s.ArgsCount,
		"kwargs_count":          s.KwargsCount,
		"dependencies":          string(deps),
		"injected_dependencies": s.InjectedDependencies,
		"mesh_positions":        string(positions),
		"agent_id":              s.Agent.AgentID,
		"agent_name":            s.Agent.Name,
		"agent_namespace":       s.Agent.Namespace,
		"agent_hostname":        s.Agent.Host,
		"agent_ip":              s.Agent.Host,
		"agent_port":            s.Agent.Port,
		"agent_endpoint":        fmt.Sprintf("http://%s:%d", s.Agent.Host, s.Agent.Port),
	}, nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// NowMillis is a small helper used by callers constructing SpanRecords so
// StartTime/EndTime are always unix-millis, matching the trace stream
// record's documented field type.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
