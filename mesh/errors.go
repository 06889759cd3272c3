package mesh

import "fmt"

// ConfigError wraps a malformed environment or caller-supplied config value.
// Fatal at auto-start.
type ConfigError struct {
	Field string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mesh: invalid config field %s=%q: %v", e.Field, e.Value, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// RegistrationError is surfaced as a registration_failed event; the agent
// keeps serving and continues heartbeating.
type RegistrationError struct {
	AgentID string
	Cause   error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("mesh: registration failed for %s: %v", e.AgentID, e.Cause)
}

func (e *RegistrationError) Unwrap() error { return e.Cause }

// TransportError is raised when a proxy call receives a non-2xx HTTP status
// or a network-level failure.
type TransportError struct {
	Endpoint   string
	StatusCode int // 0 when the failure never reached the HTTP layer
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("mesh: transport error calling %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("mesh: transport error calling %s: %v", e.Endpoint, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// TimeoutError is raised when a proxy call's deadline elapses. Never
// retried.
type TimeoutError struct {
	Endpoint       string
	TimeoutSeconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mesh: call to %s exceeded %ds timeout", e.Endpoint, e.TimeoutSeconds)
}

// RemoteError wraps a JSON-RPC error envelope returned by a remote tool.
// Never retried.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mesh: remote error %d: %s", e.Code, e.Message)
}

// ToolExecutionError is raised when an LLM loop's tool call fails. It is
// attached to the assistant's tool message as a JSON error object so the
// LLM can recover, and recorded in the loop's tool-call metadata.
type ToolExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("mesh: tool %s execution failed: %v", e.ToolName, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// MaxIterationsError is raised when an LLM agentic loop exhausts
// maxIterations without a terminal assistant message.
type MaxIterationsError struct {
	Iterations          int
	LastAssistantMessage string
	History              []map[string]any
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("mesh: llm loop exhausted after %d iterations", e.Iterations)
}

// LLMAPIError wraps a non-2xx response (or request-level abort) from an LLM
// provider.
type LLMAPIError struct {
	Provider   string
	StatusCode int
	Body       string
	Cause      error
}

func (e *LLMAPIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mesh: llm api error from %s: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("mesh: llm api error from %s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *LLMAPIError) Unwrap() error { return e.Cause }

// ResponseParseError is raised when extracted content fails schema
// validation, or when no JSON could be extracted at all.
type ResponseParseError struct {
	RawContent  string
	Diagnostics []string
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("mesh: response parse failed: %v", e.Diagnostics)
}

// ProviderUnavailableError is raised when an LLM tool's configured
// mesh-delegated provider could not be resolved to a live proxy.
type ProviderUnavailableError struct {
	Provider string
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("mesh: provider %q is not available", e.Provider)
}
