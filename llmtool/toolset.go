package llmtool

import "sync"

// ToolSet is the thread-safe, capability-name-keyed map of resolved tools
// visible to one LLM tool. It is rebuilt as dependency_available/changed/
// unavailable events for matching capabilities arrive, and narrowed by the
// most recent llm_tools_updated event naming exactly which of the known
// capabilities are currently in scope for this tool's filter.
type ToolSet struct {
	mu      sync.RWMutex
	known   map[string]ResolvedTool
	visible map[string]struct{} // nil means "every known capability is visible"
}

// NewToolSet returns an empty ToolSet with no visibility restriction yet
// applied.
func NewToolSet() *ToolSet {
	return &ToolSet{known: make(map[string]ResolvedTool)}
}

// Upsert records or replaces the resolved tool for capability.
func (t *ToolSet) Upsert(capability string, tool ResolvedTool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known[capability] = tool
}

// Remove deletes capability's resolved tool, if present.
func (t *ToolSet) Remove(capability string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.known, capability)
}

// SetVisible narrows the snapshot to exactly the named capabilities,
// matching the most recent llm_tools_updated event. Passing nil restores
// "every known capability is visible".
func (t *ToolSet) SetVisible(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if names == nil {
		t.visible = nil
		return
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	t.visible = set
}

// Snapshot returns the capability->ResolvedTool map currently in scope:
// every known tool when no visibility narrowing has been applied,
// otherwise the intersection with the last llm_tools_updated set.
func (t *ToolSet) Snapshot() map[string]ResolvedTool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ResolvedTool, len(t.known))
	for capability, tool := range t.known {
		if t.visible != nil {
			if _, ok := t.visible[capability]; !ok {
				continue
			}
		}
		out[capability] = tool
	}
	return out
}
