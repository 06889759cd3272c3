package llmtool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// fakeProvider replays a fixed sequence of CompletionResult turns, one per
// Complete call, mirroring the single-call-per-iteration shape the agentic
// loop drives it with.
type fakeProvider struct {
	turns []CompletionResult
	calls int
}

func (f *fakeProvider) Complete(ctx context.Context, messages []Message, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode, genParams GenerationParams) (CompletionResult, error) {
	if f.calls >= len(f.turns) {
		return CompletionResult{}, errNoMoreTurns
	}
	r := f.turns[f.calls]
	f.calls++
	return r, nil
}

var errNoMoreTurns = &mesh.LLMAPIError{Provider: "fake", Cause: nil}

// fakeToolProxy is a ToolProxy whose Call always returns sum.
type fakeToolProxy struct{ endpoint string }

func (f fakeToolProxy) Endpoint() string { return f.endpoint }
func (f fakeToolProxy) Call(ctx context.Context, args map[string]any) (any, error) {
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	return a + b, nil
}

func TestRuntime_Complete_AgenticLoopWithToolCall(t *testing.T) {
	provider := &fakeProvider{turns: []CompletionResult{
		{
			Content: "",
			ToolCalls: []ToolCall{
				{ID: "call-1", Name: "add", Arguments: `{"a":2,"b":3}`},
			},
		},
		{
			Content: `{"answer":"5"}`,
		},
	}}

	def := ToolDef{
		Base:         mesh.ToolSpec{FunctionName: "summer"},
		Provider:     ProviderSpec{Vendor: "claude"},
		SystemPrompt: "You are a helper.",
		ReturnSchema: json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}},"required":["answer"]}`),
	}
	rt := New(def, provider, claudeHandler{}, nil)

	tools := map[string]ResolvedTool{
		"add": {
			Descriptor: ToolDescriptor{Name: "add", Description: "adds two numbers"},
			Proxy:      fakeToolProxy{endpoint: "http://add:9000"},
		},
	}

	result, meta, err := rt.Complete(context.Background(), tools, []Message{{Role: "user", Content: "what is 2+3?"}}, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"answer": "5"}, result)
	require.Len(t, meta.ToolCalls, 1)
	require.Equal(t, "add", meta.ToolCalls[0].Name)
	require.Equal(t, 2, meta.Iterations)
	require.Equal(t, "claude", meta.Provider)
}

func TestRuntime_Complete_MaxIterationsExhaustion(t *testing.T) {
	// The provider always asks to call a tool and never terminates, so the
	// loop must exhaust maxIterations and surface MaxIterationsError.
	turns := make([]CompletionResult, 0, 3)
	for i := 0; i < 3; i++ {
		turns = append(turns, CompletionResult{
			Content:   "thinking",
			ToolCalls: []ToolCall{{ID: "call", Name: "add", Arguments: `{"a":1,"b":1}`}},
		})
	}
	provider := &fakeProvider{turns: turns}

	def := ToolDef{
		Base:          mesh.ToolSpec{FunctionName: "looper"},
		Provider:      ProviderSpec{Vendor: "claude"},
		SystemPrompt:  "loop forever",
		MaxIterations: 3,
	}
	rt := New(def, provider, claudeHandler{}, nil)

	tools := map[string]ResolvedTool{
		"add": {Descriptor: ToolDescriptor{Name: "add"}, Proxy: fakeToolProxy{endpoint: "http://add:9000"}},
	}

	_, _, err := rt.Complete(context.Background(), tools, []Message{{Role: "user", Content: "go"}}, nil)
	require.Error(t, err)
	var maxErr *mesh.MaxIterationsError
	require.ErrorAs(t, err, &maxErr)
	require.Equal(t, 3, maxErr.Iterations)
	require.Equal(t, "thinking", maxErr.LastAssistantMessage)
}

func TestRuntime_Complete_NoToolsNoSchema_ReturnsRawText(t *testing.T) {
	provider := &fakeProvider{turns: []CompletionResult{{Content: "hello there"}}}
	def := ToolDef{
		Base:         mesh.ToolSpec{FunctionName: "chat"},
		Provider:     ProviderSpec{Vendor: "claude"},
		SystemPrompt: "chat",
	}
	rt := New(def, provider, claudeHandler{}, nil)

	result, meta, err := rt.Complete(context.Background(), nil, []Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "hello there", result)
	require.Equal(t, 1, meta.Iterations)
}

func TestRuntime_Complete_MissingToolProxy_RecoverableError(t *testing.T) {
	provider := &fakeProvider{turns: []CompletionResult{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "missing", Arguments: `{}`}}},
		{Content: "done anyway"},
	}}
	def := ToolDef{
		Base:         mesh.ToolSpec{FunctionName: "recover"},
		Provider:     ProviderSpec{Vendor: "claude"},
		SystemPrompt: "recover",
	}
	rt := New(def, provider, claudeHandler{}, nil)

	result, meta, err := rt.Complete(context.Background(), map[string]ResolvedTool{}, []Message{{Role: "user", Content: "go"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "done anyway", result)
	require.Len(t, meta.ToolCalls, 1)
	require.NotEmpty(t, meta.ToolCalls[0].Err)
}

func TestMatchesFilters(t *testing.T) {
	include := []CapabilityFilter{{Mode: FilterInclude, Capabilities: []string{"search", "calc"}}}
	require.True(t, MatchesFilters(include, "search"))
	require.False(t, MatchesFilters(include, "other"))

	exclude := []CapabilityFilter{{Mode: FilterExclude, Capabilities: []string{"danger"}}}
	require.True(t, MatchesFilters(exclude, "search"))
	require.False(t, MatchesFilters(exclude, "danger"))

	require.True(t, MatchesFilters(nil, "anything"))
}

func TestToolSet_SnapshotRespectsVisibility(t *testing.T) {
	ts := NewToolSet()
	ts.Upsert("search", ResolvedTool{Descriptor: ToolDescriptor{Name: "search"}, Proxy: fakeToolProxy{endpoint: "http://s"}})
	ts.Upsert("calc", ResolvedTool{Descriptor: ToolDescriptor{Name: "calc"}, Proxy: fakeToolProxy{endpoint: "http://c"}})

	require.Len(t, ts.Snapshot(), 2)

	ts.SetVisible([]string{"search"})
	snap := ts.Snapshot()
	require.Len(t, snap, 1)
	_, ok := snap["search"]
	require.True(t, ok)

	ts.Remove("search")
	require.Empty(t, ts.Snapshot())
}

func TestResolveModel(t *testing.T) {
	require.Equal(t, "claude-sonnet-4-5", ResolveModel("claude", ""))
	require.Equal(t, "custom-model", ResolveModel("claude", "custom-model"))
	require.Equal(t, "", ResolveModel("unknown-vendor", ""))
}
