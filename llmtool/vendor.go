package llmtool

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Capabilities describes what a vendor's completion API natively supports.
type Capabilities struct {
	NativeToolCalling bool
	StructuredOutput  bool
	Streaming         bool
	Vision            bool
	JSONMode          bool
	PromptCaching     bool
}

// VendorHandler is the per-vendor policy plug-in: how the system prompt is
// formatted and which output mode is selected for a given schema.
type VendorHandler interface {
	FormatSystemPrompt(base string, tools []ToolDescriptor, outputSchema json.RawMessage, mode OutputMode) string
	DetermineOutputMode(schema json.RawMessage, override OutputMode) OutputMode
	Capabilities() Capabilities
}

// genericHandler is the fallback used for vendors with no dedicated
// policy: hint mode whenever a schema is present, since a vendor of
// unknown native structured-output support cannot safely be assumed to
// have one.
type genericHandler struct{}

func (genericHandler) FormatSystemPrompt(base string, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode) string {
	return formatSystemPromptCommon(base, tools, schema, mode)
}

func (genericHandler) DetermineOutputMode(schema json.RawMessage, override OutputMode) OutputMode {
	if override != "" {
		return override
	}
	if len(schema) == 0 {
		return OutputModeText
	}
	return OutputModeHint
}

func (genericHandler) Capabilities() Capabilities {
	return Capabilities{}
}

// formatSystemPromptCommon renders the shared "Available Tools" and
// "Output Format" sections, reused by every VendorHandler implementation
// so vendor-specific code only differs in mode selection, not section
// formatting.
func formatSystemPromptCommon(base string, tools []ToolDescriptor, schema json.RawMessage, mode OutputMode) string {
	var b strings.Builder
	b.WriteString(base)

	if len(tools) > 0 {
		b.WriteString("\n\n## Available Tools\n")
		for _, t := range tools {
			b.WriteString(fmt.Sprintf("- %s: %s\n  input schema: %s\n", t.Name, t.Description, string(t.InputSchema)))
		}
	}

	if mode != OutputModeText && len(schema) > 0 {
		b.WriteString("\n\n## Output Format\n")
		b.WriteString("Respond only with JSON matching this schema:\n")
		b.Write(schema)
		b.WriteString("\n")
	}

	return b.String()
}

// Registry maps a vendor name to a handler constructor plus one cached
// handler instance. Unknown vendors fall back to genericHandler.
type Registry struct {
	mu        sync.Mutex
	factories map[string]func() VendorHandler
	cached    map[string]VendorHandler
}

// NewRegistry builds a Registry pre-populated with the vendors this module
// ships direct adapters for.
func NewRegistry() *Registry {
	r := &Registry{
		factories: map[string]func() VendorHandler{
			"claude": func() VendorHandler { return claudeHandler{} },
			"openai": func() VendorHandler { return openaiHandler{} },
		},
		cached: make(map[string]VendorHandler),
	}
	return r
}

// Register installs or overrides the factory for a vendor name.
func (r *Registry) Register(vendor string, factory func() VendorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[vendor] = factory
}

// Get returns the cached handler for vendor, constructing and caching one
// on first use. Unknown vendors resolve to genericHandler.
func (r *Registry) Get(vendor string) VendorHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.cached[vendor]; ok {
		return h
	}
	factory, ok := r.factories[vendor]
	if !ok {
		h := genericHandler{}
		r.cached[vendor] = h
		return h
	}
	h := factory()
	r.cached[vendor] = h
	return h
}

// defaultModels maps a vendor tag to the model identifier used when no
// explicit model override is configured. An explicit model without a
// vendor prefix is assumed to belong to the configured vendor.
var defaultModels = map[string]string{
	"claude": "claude-sonnet-4-5",
	"openai": "gpt-4.1",
	"gemini": "gemini-2.5-pro",
}

// ResolveModel returns the model identifier to use for vendor, honoring an
// explicit override first.
func ResolveModel(vendor, override string) string {
	if override != "" {
		return override
	}
	return defaultModels[vendor]
}
