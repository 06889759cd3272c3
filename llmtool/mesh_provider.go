package llmtool

import (
	"context"
	"encoding/json"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// MeshProvider wraps a resolved provider-tool Proxy, serializing the
// generic completion request into a {messages, tools, model_params}
// envelope and posting it to the provider's "process_chat" tool. The
// underlying proxy call already publishes a span and propagates trace
// context through both headers and argument fallbacks, so no extra
// instrumentation is needed here.
type MeshProvider struct {
	proxy ToolProxy
	name  string // the mesh capability name, used as Metadata.Provider
	model string
}

// NewMeshProvider builds a MeshProvider over a resolved provider-capability
// proxy.
func NewMeshProvider(proxy ToolProxy, capability, model string) *MeshProvider {
	return &MeshProvider{proxy: proxy, name: capability, model: model}
}

type meshModelParams struct {
	Model          string   `json:"model,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	Temperature    float64  `json:"temperature,omitempty"`
	TopP           float64  `json:"top_p,omitempty"`
	Stop           []string `json:"stop,omitempty"`
	OutputSchema   any      `json:"output_schema,omitempty"`
	OutputTypeName string   `json:"output_type_name,omitempty"`
}

type meshChatRequest struct {
	Messages     []Message        `json:"messages"`
	Tools        []ToolDescriptor `json:"tools,omitempty"`
	ModelParams  meshModelParams  `json:"model_params"`
}

type meshChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     TokenUsage `json:"usage"`
	Model     string     `json:"model,omitempty"`
}

// Complete delegates the full completion request to the mesh-resolved
// provider tool. Vendor-specific schema handling (strict/hint/native
// response_format) is left to the delegate's own provider runtime.
func (m *MeshProvider) Complete(ctx context.Context, messages []Message, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode, genParams GenerationParams) (CompletionResult, error) {
	var outputSchema any
	if len(schema) > 0 {
		_ = json.Unmarshal(schema, &outputSchema)
	}
	req := meshChatRequest{
		Messages: messages,
		Tools:    tools,
		ModelParams: meshModelParams{
			Model:        m.model,
			MaxTokens:    genParams.MaxOutputTokens,
			Temperature:  genParams.Temperature,
			TopP:         genParams.TopP,
			Stop:         genParams.Stop,
			OutputSchema: outputSchema,
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, err
	}
	var args map[string]any
	if err := json.Unmarshal(body, &args); err != nil {
		return CompletionResult{}, err
	}

	raw, err := m.proxy.Call(ctx, args)
	if err != nil {
		return CompletionResult{}, &mesh.LLMAPIError{Provider: m.name, Cause: err}
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return CompletionResult{}, &mesh.LLMAPIError{Provider: m.name, Cause: err}
	}
	var resp meshChatResponse
	if err := json.Unmarshal(encoded, &resp); err != nil {
		return CompletionResult{}, &mesh.LLMAPIError{Provider: m.name, Cause: err}
	}
	return CompletionResult{Content: resp.Content, ToolCalls: resp.ToolCalls, Usage: resp.Usage, Model: resp.Model}, nil
}
