// Package llmtool is the agentic-loop LLM tool runtime that sits inside
// an agent tool body. It renders a templated system prompt, calls a
// direct vendor SDK or a mesh-delegated provider proxy, dispatches any
// tool_calls the model emits against resolved dependency proxies, and
// parses the final assistant content with responseparser.
package llmtool

import (
	"context"
	"encoding/json"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// OutputMode selects how strongly structured output is enforced: strict
// uses native schema-constrained decoding, hint relies on a prompt
// instruction, text applies no constraint at all.
type OutputMode string

const (
	OutputModeStrict OutputMode = "strict"
	OutputModeHint   OutputMode = "hint"
	OutputModeText   OutputMode = "text"
)

// FilterMode selects whether a CapabilityFilter's Capabilities list names
// what is included or what is excluded from the tool's resolvable toolset.
type FilterMode string

const (
	FilterInclude FilterMode = "include"
	FilterExclude FilterMode = "exclude"
)

// CapabilityFilter narrows which mesh capabilities are visible to this LLM
// tool as callable tools.
type CapabilityFilter struct {
	Mode         FilterMode
	Capabilities []string
}

// MatchesFilters reports whether capability passes every filter in fs. An
// empty filter list admits everything. llm_tools_updated events arrive
// pre-filtered by the registry; a client-side filter list, when supplied,
// is still honored on top of that.
func MatchesFilters(fs []CapabilityFilter, capability string) bool {
	for _, f := range fs {
		found := false
		for _, c := range f.Capabilities {
			if c == capability {
				found = true
				break
			}
		}
		switch f.Mode {
		case FilterExclude:
			if found {
				return false
			}
		default: // FilterInclude
			if len(f.Capabilities) > 0 && !found {
				return false
			}
		}
	}
	return true
}

// ProviderSpec is a tagged variant: either a direct vendor tag or a mesh
// capability to delegate completion to.
type ProviderSpec struct {
	Vendor string               // "claude" | "openai" | "gemini"; empty when Mesh is set
	Mesh   *mesh.DependencySpec // non-nil for a mesh-delegated provider
}

// IsMeshDelegated reports whether this provider spec delegates to a
// resolved mesh capability rather than a direct vendor SDK.
func (p ProviderSpec) IsMeshDelegated() bool { return p.Mesh != nil }

// GenerationParams are the per-call generation knobs.
type GenerationParams struct {
	MaxOutputTokens int
	Temperature     float64
	TopP            float64
	Stop            []string
}

// ToolDef extends mesh.ToolSpec with the LLM-tool-specific fields.
type ToolDef struct {
	Base          mesh.ToolSpec
	Provider      ProviderSpec
	Model         string // optional override
	SystemPrompt  string // inline text or a file:// path
	ContextParam  string
	Filter        []CapabilityFilter
	MaxIterations int // default 10
	GenParams     GenerationParams
	ReturnSchema  json.RawMessage
	OutputMode    OutputMode // default OutputModeHint

	// DependencyDescriptors supplies the name/description/input-schema
	// metadata for each resolvable tool capability, since a resolved
	// dependency slot itself only carries an endpoint and a Call
	// method. Keyed by capability.
	DependencyDescriptors map[string]ToolDescriptor
}

// effectiveMaxIterations applies the default of 10.
func (d ToolDef) effectiveMaxIterations() int {
	if d.MaxIterations > 0 {
		return d.MaxIterations
	}
	return 10
}

func (d ToolDef) effectiveOutputMode() OutputMode {
	if d.OutputMode != "" {
		return d.OutputMode
	}
	return OutputModeHint
}

// Message is one entry in the conversation sent to/received from a
// provider. Role is one of "system", "user", "assistant", "tool".
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant-role messages only
	ToolCallID string     // tool-role messages only: which call this answers
	Name       string     // tool-role messages only: the tool's name
}

// ToolCall is one model-issued call to a resolved tool proxy.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON text, as the model emitted it
}

// ToolDescriptor is what gets listed in the "Available Tools" prompt
// section and, for native-tool-calling vendors, passed as the provider's
// own tool definition.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolProxy is the minimal callable surface the loop needs from a resolved
// dependency — satisfied structurally by *proxy.Proxy and by
// agentruntime.Dependency without this package importing either.
type ToolProxy interface {
	Endpoint() string
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ResolvedTool pairs a callable proxy with the descriptive metadata (name,
// description, input schema) needed to render the "Available Tools"
// prompt section and, for native-tool-calling vendors, the provider's own
// tool definition.
type ResolvedTool struct {
	Descriptor ToolDescriptor
	Proxy      ToolProxy
}

// TokenUsage accumulates across every turn of one Complete call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ToolCallRecord is one recorded tool invocation for Metadata.ToolCalls.
type ToolCallRecord struct {
	Name   string
	Args   string
	Result string
	Err    string
}

// Metadata describes one completed Complete call.
type Metadata struct {
	Usage      TokenUsage
	LatencyMs  float64
	ToolCalls  []ToolCallRecord
	Model      string
	Provider   string
	Iterations int
}

// CompletionResult is one provider turn's output.
type CompletionResult struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
	Model     string
}
