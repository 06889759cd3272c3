// Package mesh holds the data model shared by every agent-runtime component:
// descriptors, tool specs, the dependency table's value type, and the
// MeshEvent union delivered by the registry client.
package mesh

import "encoding/json"

// AgentType distinguishes a tool-providing agent from a pure API consumer.
type AgentType string

const (
	AgentTypeProvider    AgentType = "provider"
	AgentTypeAPIConsumer AgentType = "api-consumer"
)

// AgentDescriptor is immutable once Resolve returns it.
type AgentDescriptor struct {
	AgentID           string
	Name              string
	Version           string
	Description       string
	Port              int
	Host              string
	Namespace         string
	RegistryURL       string
	HeartbeatInterval int // seconds
	AgentType         AgentType
}

// DependencySpec is the normalized form of a tool dependency declaration.
// Order within a ToolSpec.Dependencies slice is significant: the slot index
// is the dependency's identity.
type DependencySpec struct {
	Capability string
	Tags       []string
	Version    string // optional constraint, empty means unconstrained
}

// DependencyKwargs configures how a resolved dependency's Proxy behaves.
type DependencyKwargs struct {
	TimeoutSeconds  int
	MaxAttempts     int
	Streaming       bool
	SessionRequired bool
}

// DefaultDependencyKwargs returns the per-slot proxy config defaults.
func DefaultDependencyKwargs() DependencyKwargs {
	return DependencyKwargs{
		TimeoutSeconds: 30,
		MaxAttempts:    1,
	}
}

// ToolSpec describes one tool registered with an agent runtime before
// auto-start. Adding tools after start is not permitted.
type ToolSpec struct {
	FunctionName     string
	Capability       string
	Version          string
	Tags             []string
	Description      string
	InputSchema      json.RawMessage
	Dependencies     []DependencySpec
	DependencyKwargs []DependencyKwargs // parallel to Dependencies; same length
}

// ResolvedDependency is the transient value a registry event resolves a
// dependency slot to.
type ResolvedDependency struct {
	Capability   string
	AgentID      string
	Endpoint     string // base URL, no trailing /mcp
	FunctionName string
}

// DependencyKey is the DependencyTable's composite key: the consuming
// tool/route identifier plus the positional slot index within its
// dependency list.
type DependencyKey struct {
	ConsumerID string
	SlotIndex  int
}

// TraceContext is the pair propagated through async-local (context.Context
// in this runtime) scope across a call chain.
type TraceContext struct {
	TraceID      string // 32 hex chars
	ParentSpanID string // 16 hex chars, empty means none
}

// SpanRecord is write-once: constructed fully, then published, never
// mutated afterward.
type SpanRecord struct {
	TraceID              string
	SpanID               string
	ParentSpan           string // "" means none; emitted as "null" on the wire
	FunctionName         string
	StartTime            int64 // unix millis
	EndTime              int64
	DurationMs           float64
	Success              bool
	Error                string
	ResultType           string
	ArgsCount            int
	KwargsCount          int
	Dependencies         []string
	InjectedDependencies int
	MeshPositions        []string
	Agent                AgentDescriptor
}
