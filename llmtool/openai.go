package llmtool

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/responseparser"
)

// openaiHandler is the OpenAI VendorHandler: strict mode when a schema is
// present and no tools are active (tool-calls preclude the native
// structured-output path); hint mode otherwise.
type openaiHandler struct{}

func (openaiHandler) FormatSystemPrompt(base string, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode) string {
	if mode == OutputModeStrict {
		// The schema is carried natively via response_format, so the
		// prompt only needs the tool list, not a JSON instruction.
		return formatSystemPromptCommon(base, tools, nil, OutputModeText)
	}
	return formatSystemPromptCommon(base, tools, schema, mode)
}

func (openaiHandler) DetermineOutputMode(schema json.RawMessage, override OutputMode) OutputMode {
	if override != "" {
		return override
	}
	if len(schema) == 0 {
		return OutputModeText
	}
	return OutputModeHint
}

// determineOpenAIOutputMode additionally needs to know whether tools are
// active, which VendorHandler.DetermineOutputMode's narrower signature
// does not carry; the runtime calls this directly for OpenAI instead of
// going through the interface method.
func determineOpenAIOutputMode(schema json.RawMessage, override OutputMode, hasTools bool) OutputMode {
	if override != "" {
		return override
	}
	if len(schema) == 0 {
		return OutputModeText
	}
	if hasTools {
		return OutputModeHint
	}
	return OutputModeStrict
}

func (openaiHandler) Capabilities() Capabilities {
	return Capabilities{NativeToolCalling: true, StructuredOutput: true, Streaming: true, Vision: true, JSONMode: true}
}

// OpenAIProvider implements Provider directly against the OpenAI Chat
// Completions API via the official github.com/openai/openai-go SDK. In
// strict mode it sends a response_format with the schema transformed to
// carry additionalProperties:false recursively.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProviderFromAPIKey constructs a provider using the SDK's own
// HTTP client; credential handling stays inside the vendor SDK.
func NewOpenAIProviderFromAPIKey(apiKey, model string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client, model: model}
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode, genParams GenerationParams) (CompletionResult, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: encodeOpenAIMessages(messages),
	}
	if genParams.Temperature > 0 {
		params.Temperature = openai.Float(genParams.Temperature)
	}
	if genParams.TopP > 0 {
		params.TopP = openai.Float(genParams.TopP)
	}
	if genParams.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(genParams.MaxOutputTokens))
	}
	if len(genParams.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: genParams.Stop}
	}
	if len(tools) > 0 {
		params.Tools = encodeOpenAITools(tools)
	}
	if mode == OutputModeStrict && len(schema) > 0 && len(tools) == 0 {
		var decoded map[string]any
		if err := json.Unmarshal(schema, &decoded); err == nil {
			strict := responseparser.ApplyStrictAdditionalProperties(decoded)
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   "tool_output",
						Schema: strict,
						Strict: openai.Bool(true),
					},
				},
			}
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return CompletionResult{}, &mesh.LLMAPIError{Provider: "openai", Cause: err}
	}
	return translateOpenAIResponse(resp), nil
}

func encodeOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "user":
			out = append(out, openai.UserMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			msg := openai.AssistantMessage(m.Content)
			msg.OfAssistant.ToolCalls = calls
			out = append(out, msg)
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func encodeOpenAITools(tools []ToolDescriptor) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		_ = json.Unmarshal(t.InputSchema, &params)
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  params,
			},
		})
	}
	return out
}

func translateOpenAIResponse(resp *openai.ChatCompletion) CompletionResult {
	result := CompletionResult{Model: resp.Model}
	if len(resp.Choices) == 0 {
		return result
	}
	msg := resp.Choices[0].Message
	result.Content = msg.Content
	for _, call := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	result.Usage = TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return result
}
