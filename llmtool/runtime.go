package llmtool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/responseparser"
	"github.com/dhyansraj/mcp-mesh/telemetry"
)

// Provider is the narrow surface the agentic loop needs from any
// completion backend. Direct vendor SDK adapters and the MeshProvider
// delegate both reduce to this one call signature.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode, genParams GenerationParams) (CompletionResult, error)
}

// Runtime runs one LLM tool's agentic loop, built to live inside an agent
// tool body: agentruntime resolves the tool's dependency/provider proxies
// and calls Runtime.Complete from the registered ExecuteFunc.
type Runtime struct {
	def      ToolDef
	provider Provider
	handler  VendorHandler
	obs      *telemetry.Observability
}

// New constructs a Runtime for one ToolDef. handler is nil for a
// mesh-delegated provider, where vendor-specific handling is skipped
// entirely.
func New(def ToolDef, provider Provider, handler VendorHandler, obs *telemetry.Observability) *Runtime {
	if obs == nil {
		obs = telemetry.New(telemetry.Bundle{})
	}
	return &Runtime{def: applyEnvOverrides(def), provider: provider, handler: handler, obs: obs}
}

// Complete runs the agentic loop: render the system prompt, loop up to
// maxIterations calling the provider and dispatching any tool_calls
// against tools, and parse the final content with responseparser once the
// model stops calling tools.
func (r *Runtime) Complete(ctx context.Context, tools map[string]ResolvedTool, userMessages []Message, templateData any) (any, Metadata, error) {
	start := time.Now()

	rendered, err := RenderSystemPrompt(r.def.SystemPrompt, templateData)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("llmtool: render system prompt: %w", err)
	}

	descriptors := toolDescriptors(tools)
	isMeshDelegated := r.def.Provider.IsMeshDelegated()

	mode := r.def.effectiveOutputMode()
	if r.def.Provider.Vendor == "openai" && r.def.ReturnSchema != nil {
		mode = determineOpenAIOutputMode(r.def.ReturnSchema, r.def.OutputMode, len(descriptors) > 0)
	} else if r.handler != nil {
		mode = r.handler.DetermineOutputMode(r.def.ReturnSchema, r.def.OutputMode)
	}

	var systemPrompt string
	if isMeshDelegated {
		// Delegation skips vendor-specific schema handling (the
		// delegate applies its own), so the system prompt only gets
		// the tool list.
		systemPrompt = formatSystemPromptCommon(rendered, descriptors, nil, OutputModeText)
	} else if r.handler != nil {
		systemPrompt = r.handler.FormatSystemPrompt(rendered, descriptors, r.def.ReturnSchema, mode)
	} else {
		systemPrompt = formatSystemPromptCommon(rendered, descriptors, r.def.ReturnSchema, mode)
	}

	messages := make([]Message, 0, len(userMessages)+1)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	messages = append(messages, userMessages...)

	maxIterations := r.def.effectiveMaxIterations()
	turnTimeout := providerTimeout(isMeshDelegated)
	var (
		totalUsage    TokenUsage
		toolRecords   []ToolCallRecord
		model         string
		finalContent  string
		terminated    bool
		lastAssistant string
		iterationsRun int
	)

	for iteration := 1; iteration <= maxIterations; iteration++ {
		iterationsRun = iteration
		result, err := r.completeTurn(ctx, turnTimeout, messages, descriptors, mode)
		if err != nil {
			return nil, Metadata{}, err
		}
		totalUsage.InputTokens += result.Usage.InputTokens
		totalUsage.OutputTokens += result.Usage.OutputTokens
		totalUsage.TotalTokens += result.Usage.TotalTokens
		if result.Model != "" {
			model = result.Model
		}

		assistantMsg := Message{Role: "assistant", Content: result.Content, ToolCalls: result.ToolCalls}
		messages = append(messages, assistantMsg)
		lastAssistant = result.Content

		if len(result.ToolCalls) == 0 {
			finalContent = result.Content
			terminated = true
			break
		}

		for _, call := range result.ToolCalls {
			record, toolMsg := r.dispatchToolCall(ctx, tools, call)
			toolRecords = append(toolRecords, record)
			messages = append(messages, toolMsg)
		}
	}

	latency := float64(time.Since(start).Microseconds()) / 1000.0
	meta := Metadata{
		Usage:      totalUsage,
		LatencyMs:  latency,
		ToolCalls:  toolRecords,
		Model:      model,
		Provider:   providerName(r.def.Provider),
		Iterations: iterationsRun,
	}

	if !terminated {
		history := make([]map[string]any, len(messages))
		for i, m := range messages {
			history[i] = map[string]any{"role": m.Role, "content": m.Content}
		}
		return nil, meta, &mesh.MaxIterationsError{
			Iterations:           maxIterations,
			LastAssistantMessage: lastAssistant,
			History:              history,
		}
	}

	var schema json.RawMessage
	if mode != OutputModeText {
		schema = r.def.ReturnSchema
	}
	parsed, err := responseparser.Parse(finalContent, schema)
	if err != nil {
		return nil, meta, err
	}
	return parsed, meta, nil
}

// completeTurn issues one provider turn under the configured per-turn
// deadline, when any.
func (r *Runtime) completeTurn(ctx context.Context, timeout time.Duration, messages []Message, descriptors []ToolDescriptor, mode OutputMode) (CompletionResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.provider.Complete(ctx, messages, descriptors, r.def.ReturnSchema, mode, r.def.GenParams)
}

// dispatchToolCall invokes one model-issued tool call against the
// resolved proxy named by call.Name, returning both the accounting record
// and the "tool" role message to append to history. A missing proxy or a
// call failure is attached to the tool message as a JSON error object so
// the LLM can recover, rather than aborting the loop.
func (r *Runtime) dispatchToolCall(ctx context.Context, tools map[string]ResolvedTool, call ToolCall) (ToolCallRecord, Message) {
	record := ToolCallRecord{Name: call.Name, Args: call.Arguments}

	resolved, ok := tools[call.Name]
	if !ok {
		err := &mesh.ToolExecutionError{ToolName: call.Name, Cause: fmt.Errorf("no resolved tool named %q", call.Name)}
		record.Err = err.Error()
		return record, errorToolMessage(call, err)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			wrapped := &mesh.ToolExecutionError{ToolName: call.Name, Cause: err}
			record.Err = wrapped.Error()
			return record, errorToolMessage(call, wrapped)
		}
	}

	callCtx := ctx
	if d := toolCallTimeout(); d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	result, err := resolved.Proxy.Call(callCtx, args)
	if err != nil {
		wrapped := &mesh.ToolExecutionError{ToolName: call.Name, Cause: err}
		record.Err = wrapped.Error()
		return record, errorToolMessage(call, wrapped)
	}

	content := stringifyResult(result)
	record.Result = content
	return record, Message{Role: "tool", Content: content, ToolCallID: call.ID, Name: call.Name}
}

func errorToolMessage(call ToolCall, err error) Message {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Message{Role: "tool", Content: string(body), ToolCallID: call.ID, Name: call.Name}
}

func stringifyResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(body)
}

func toolDescriptors(tools map[string]ResolvedTool) []ToolDescriptor {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sortStrings(names)
	out := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		out = append(out, tools[name].Descriptor)
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func providerName(p ProviderSpec) string {
	if p.IsMeshDelegated() {
		return p.Mesh.Capability
	}
	return p.Vendor
}
