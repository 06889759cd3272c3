package agentruntime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/llmtool"
	"github.com/dhyansraj/mcp-mesh/mesh"
)

type fakeLLMProvider struct {
	turns []llmtool.CompletionResult
	calls int
}

func (f *fakeLLMProvider) Complete(ctx context.Context, messages []llmtool.Message, tools []llmtool.ToolDescriptor, schema json.RawMessage, mode llmtool.OutputMode, genParams llmtool.GenerationParams) (llmtool.CompletionResult, error) {
	r := f.turns[f.calls]
	f.calls++
	return r, nil
}

func TestAddLLMTool_DirectProvider_ResolvesToolsFromDependencySlots(t *testing.T) {
	rt := New(Config{})
	provider := &fakeLLMProvider{turns: []llmtool.CompletionResult{{Content: "hello"}}}

	def := llmtool.ToolDef{
		Base: mesh.ToolSpec{
			FunctionName: "assistant",
			Dependencies: []mesh.DependencySpec{{Capability: "search"}},
		},
		Provider:     llmtool.ProviderSpec{Vendor: "claude"},
		SystemPrompt: "You help users search.",
		DependencyDescriptors: map[string]llmtool.ToolDescriptor{
			"search": {Name: "search", Description: "searches the web"},
		},
	}

	require.NoError(t, rt.AddLLMTool(def, provider))
	require.Len(t, rt.tools, 1)

	rt.table.Set(mesh.DependencyKey{ConsumerID: "assistant", SlotIndex: 0}, "search", fakeDependency{endpoint: "http://search:9000"})

	wrapped := rt.wrapExecute(rt.tools[0].spec, rt.tools[0].fn)
	result, err := wrapped(context.Background(), nil, map[string]any{"message": "find me something"})
	require.NoError(t, err)
	require.Equal(t, "hello", result)
}

func TestAddLLMTool_MeshDelegatedProvider_RequiresMatchingSlot(t *testing.T) {
	rt := New(Config{})
	def := llmtool.ToolDef{
		Base: mesh.ToolSpec{
			FunctionName: "delegate",
			Dependencies: []mesh.DependencySpec{{Capability: "other"}},
		},
		Provider: llmtool.ProviderSpec{Mesh: &mesh.DependencySpec{Capability: "claude-provider"}},
	}
	err := rt.AddLLMTool(def, nil)
	require.Error(t, err, "no dependency slot declares the delegated provider's capability")
}

func TestAddLLMTool_MeshDelegatedProvider_AcceptsMatchingSlot(t *testing.T) {
	rt := New(Config{})
	def := llmtool.ToolDef{
		Base: mesh.ToolSpec{
			FunctionName: "delegate",
			Dependencies: []mesh.DependencySpec{{Capability: "claude-provider"}},
		},
		Provider: llmtool.ProviderSpec{Mesh: &mesh.DependencySpec{Capability: "claude-provider"}},
	}
	require.NoError(t, rt.AddLLMTool(def, nil))
	require.Len(t, rt.tools, 1)
}

func TestUserMessagesFromArgs(t *testing.T) {
	msgs := userMessagesFromArgs(map[string]any{"message": "hi there"})
	require.Len(t, msgs, 1)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "hi there", msgs[0].Content)

	msgs = userMessagesFromArgs(map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "first"},
			map[string]any{"role": "assistant", "content": "second"},
		},
	})
	require.Len(t, msgs, 2)
	require.Equal(t, "assistant", msgs[1].Role)

	require.Nil(t, userMessagesFromArgs(map[string]any{}))
}
