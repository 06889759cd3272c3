package llmtool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// claudeHandler is the Claude VendorHandler. It always picks hint mode
// when a schema is present since the Anthropic Messages API has no native
// JSON-schema-constrained decoding mode as of this SDK version.
type claudeHandler struct{}

func (claudeHandler) FormatSystemPrompt(base string, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode) string {
	return formatSystemPromptCommon(base, tools, schema, mode)
}

func (claudeHandler) DetermineOutputMode(schema json.RawMessage, override OutputMode) OutputMode {
	if len(schema) == 0 {
		return OutputModeText
	}
	return OutputModeHint
}

func (claudeHandler) Capabilities() Capabilities {
	return Capabilities{NativeToolCalling: true, Streaming: true, Vision: true, PromptCaching: true}
}

// AnthropicProvider implements Provider directly against the Anthropic
// Messages API.
type AnthropicProvider struct {
	msg   MessagesClient
	model string
}

// MessagesClient captures the subset of the Anthropic SDK used here,
// satisfied by *sdk.MessageService so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// NewAnthropicProvider builds a provider from an explicit MessagesClient
// (tests, or a shared client instance).
func NewAnthropicProvider(msg MessagesClient, model string) *AnthropicProvider {
	return &AnthropicProvider{msg: msg, model: model}
}

// NewAnthropicProviderFromAPIKey constructs a provider using the SDK's own
// HTTP client; credential handling stays inside the vendor SDK.
func NewAnthropicProviderFromAPIKey(apiKey, model string) *AnthropicProvider {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicProvider(&client.Messages, model)
}

func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode, genParams GenerationParams) (CompletionResult, error) {
	params, err := p.prepareRequest(messages, tools, genParams)
	if err != nil {
		return CompletionResult{}, err
	}
	msg, err := p.msg.New(ctx, *params)
	if err != nil {
		return CompletionResult{}, &mesh.LLMAPIError{Provider: "claude", Cause: err}
	}
	return translateAnthropicResponse(msg), nil
}

func (p *AnthropicProvider) prepareRequest(messages []Message, tools []ToolDescriptor, genParams GenerationParams) (*sdk.MessageNewParams, error) {
	maxTokens := genParams.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system []sdk.TextBlockParam
	var conversation []sdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case "user":
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			blocks := assistantBlocks(m)
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		case "tool":
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}

	toolParams := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, err := toolInputSchema(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", t.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		toolParams = append(toolParams, u)
	}

	params := &sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
		Model:     sdk.Model(p.model),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}
	if genParams.Temperature > 0 {
		params.Temperature = sdk.Float(genParams.Temperature)
	}
	if genParams.TopP > 0 {
		params.TopP = sdk.Float(genParams.TopP)
	}
	if len(genParams.Stop) > 0 {
		params.StopSequences = genParams.Stop
	}
	return params, nil
}

func assistantBlocks(m Message) []sdk.ContentBlockParamUnion {
	var blocks []sdk.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, sdk.NewTextBlock(m.Content))
	}
	for _, tc := range m.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Arguments), &input)
		blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
	}
	return blocks
}

func toolInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateAnthropicResponse(msg *sdk.Message) CompletionResult {
	result := CompletionResult{Model: string(msg.Model)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			argsJSON, _ := json.Marshal(block.Input)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(argsJSON),
			})
		}
	}
	result.Usage = TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return result
}
