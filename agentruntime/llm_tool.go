package agentruntime

import (
	"context"
	"fmt"

	"github.com/dhyansraj/mcp-mesh/llmtool"
	"github.com/dhyansraj/mcp-mesh/mesh"
)

// AddLLMTool registers an LLM tool as an ordinary tool body: def.Base
// becomes the registered ToolSpec, so its Dependencies list carries both
// the mesh-delegated provider capability, when
// def.Provider.IsMeshDelegated(), and every capability the tool may call
// out to as a resolved tool. Each invocation resolves the current
// dependency slots into an llmtool.Runtime and runs the agentic loop. A
// mesh-delegated provider is itself just another tool dependency, so the
// same DI machinery that resolves ordinary slots resolves the provider
// too.
func (r *Runtime) AddLLMTool(def llmtool.ToolDef, provider llmtool.Provider) error {
	var handler llmtool.VendorHandler
	if !def.Provider.IsMeshDelegated() {
		handler = llmtool.NewRegistry().Get(def.Provider.Vendor)
	}

	providerSlot := -1
	if def.Provider.IsMeshDelegated() {
		for i, d := range def.Base.Dependencies {
			if d.Capability == def.Provider.Mesh.Capability {
				providerSlot = i
				break
			}
		}
		if providerSlot == -1 {
			return fmt.Errorf("llmtool: mesh-delegated provider capability %q has no matching dependency slot in %q", def.Provider.Mesh.Capability, def.Base.FunctionName)
		}
	}

	toolSet := r.toolSetFor(def.Base.FunctionName)

	fn := func(ctx context.Context, args map[string]any, deps []Dependency) (any, error) {
		activeProvider := provider

		// Keep toolSet's "known" map in sync with the dependency table's
		// current resolution state on every invocation, then read back the
		// filtered snapshot: this is what actually makes SetVisible (driven
		// by the runtime's llm_tools_updated handling) and the defensive
		// client-side MatchesFilters check take effect, rather than handing
		// the loop every resolved dependency unconditionally.
		for i, d := range def.Base.Dependencies {
			if i == providerSlot {
				if deps[i] != nil {
					activeProvider = llmtool.NewMeshProvider(deps[i], d.Capability, def.Model)
				}
				continue
			}
			if deps[i] == nil || !llmtool.MatchesFilters(def.Filter, d.Capability) {
				toolSet.Remove(d.Capability)
				continue
			}
			descriptor := def.DependencyDescriptors[d.Capability]
			if descriptor.Name == "" {
				descriptor.Name = d.Capability
			}
			toolSet.Upsert(d.Capability, llmtool.ResolvedTool{Descriptor: descriptor, Proxy: deps[i]})
		}

		if activeProvider == nil {
			return nil, &mesh.ProviderUnavailableError{Provider: providerLabel(def.Provider)}
		}

		rt := llmtool.New(def, activeProvider, handler, r.obs)
		result, _, err := rt.Complete(ctx, toolSet.Snapshot(), userMessagesFromArgs(args), templateDataFromArgs(def, args))
		return result, err
	}

	return r.AddTool(def.Base, fn)
}

func providerLabel(p llmtool.ProviderSpec) string {
	if p.IsMeshDelegated() {
		return p.Mesh.Capability
	}
	return p.Vendor
}

// userMessagesFromArgs builds the caller-supplied message list: a
// "messages" array of {role, content} when present, otherwise a single
// user message from "message".
func userMessagesFromArgs(args map[string]any) []llmtool.Message {
	if raw, ok := args["messages"].([]any); ok {
		out := make([]llmtool.Message, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			role, _ := m["role"].(string)
			if role == "" {
				role = "user"
			}
			content, _ := m["content"].(string)
			out = append(out, llmtool.Message{Role: role, Content: content})
		}
		if len(out) > 0 {
			return out
		}
	}
	if message, ok := args["message"].(string); ok && message != "" {
		return []llmtool.Message{{Role: "user", Content: message}}
	}
	return nil
}

// templateDataFromArgs resolves def.ContextParam ("name of a caller-supplied
// field whose value becomes template context") against the raw arguments,
// falling back to the full argument map when unset.
func templateDataFromArgs(def llmtool.ToolDef, args map[string]any) any {
	if def.ContextParam == "" {
		return args
	}
	return args[def.ContextParam]
}
