package llmtool

import (
	"os"
	"strconv"
	"time"
)

// Environment overrides recognized by the LLM tool runtime. Each one, when
// set, wins over the corresponding ToolDef field for every registered LLM
// tool in the process.
const (
	envProvider      = "MCP_MESH_LLM_PROVIDER"
	envModel         = "MCP_MESH_LLM_MODEL"
	envMaxIterations = "MCP_MESH_LLM_MAX_ITERATIONS"
	envFilterMode    = "MCP_MESH_LLM_FILTER_MODE"

	envLLMTimeoutMs      = "LITELLM_TIMEOUT_MS"
	envProviderTimeoutMs = "MESH_PROVIDER_TIMEOUT_MS"
	envToolTimeoutMs     = "MESH_TOOL_TIMEOUT_MS"
)

// applyEnvOverrides layers the recognized environment overrides on top of
// def. Vendor credentials are not read here; the vendor SDKs consume those
// themselves.
func applyEnvOverrides(def ToolDef) ToolDef {
	if v := os.Getenv(envProvider); v != "" {
		def.Provider = ProviderSpec{Vendor: v}
	}
	if v := os.Getenv(envModel); v != "" {
		def.Model = v
	}
	if v := os.Getenv(envMaxIterations); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			def.MaxIterations = n
		}
	}
	if v := os.Getenv(envFilterMode); v == string(FilterInclude) || v == string(FilterExclude) {
		for i := range def.Filter {
			def.Filter[i].Mode = FilterMode(v)
		}
	}
	return def
}

// envMillis reads a millisecond-valued timeout variable; zero means unset
// or malformed.
func envMillis(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// providerTimeout returns the per-turn deadline for a provider call:
// MESH_PROVIDER_TIMEOUT_MS for a mesh-delegated provider,
// LITELLM_TIMEOUT_MS for a direct vendor call. Zero disables the deadline.
func providerTimeout(meshDelegated bool) time.Duration {
	if meshDelegated {
		return envMillis(envProviderTimeoutMs)
	}
	return envMillis(envLLMTimeoutMs)
}

// toolCallTimeout returns the deadline for one model-issued tool call.
func toolCallTimeout() time.Duration {
	return envMillis(envToolTimeoutMs)
}
