package mesh

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates the MeshEvent tagged union. Decoding switches on
// this field directly rather than probing individual payload fields.
type EventKind string

const (
	EventAgentRegistered       EventKind = "agent_registered"
	EventRegistrationFailed    EventKind = "registration_failed"
	EventDependencyAvailable   EventKind = "dependency_available"
	EventDependencyChanged     EventKind = "dependency_changed"
	EventDependencyUnavailable EventKind = "dependency_unavailable"
	EventRegistryConnected     EventKind = "registry_connected"
	EventRegistryDisconnected  EventKind = "registry_disconnected"
	EventShutdown              EventKind = "shutdown"
	EventLLMToolsUpdated       EventKind = "llm_tools_updated"
	EventLLMProviderAvailable  EventKind = "llm_provider_available"
	EventLLMProviderUnavailable EventKind = "llm_provider_unavailable"
)

// MeshEvent is the tagged union of notifications the registry client
// delivers. Not every field applies to every Kind; fields that do not apply
// to an event's Kind are left at their zero values.
type MeshEvent struct {
	Kind                EventKind
	Capability          string
	Endpoint            string
	FunctionName        string
	AgentID             string
	RequestingFunction  string // optional; "" means match by capability only
	DepIndex            int
	HasDepIndex         bool
	Reason              string   // registration_failed detail
	LLMTools            []string // llm_tools_updated payload: visible capability names
}

// eventWire is the on-the-wire JSON shape; MeshEvent's own Marshal/Unmarshal
// adapt to and from it so zero-value fields that don't apply to a given Kind
// never appear spuriously in the encoded form.
type eventWire struct {
	Kind               EventKind `json:"kind"`
	Capability         string    `json:"capability,omitempty"`
	Endpoint           string    `json:"endpoint,omitempty"`
	FunctionName       string    `json:"functionName,omitempty"`
	AgentID            string    `json:"agentId,omitempty"`
	RequestingFunction string    `json:"requestingFunction,omitempty"`
	DepIndex           *int      `json:"depIndex,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	LLMTools           []string  `json:"llmTools,omitempty"`
}

// MarshalJSON implements the Kind-discriminated encoding.
func (e MeshEvent) MarshalJSON() ([]byte, error) {
	w := eventWire{
		Kind:               e.Kind,
		Capability:         e.Capability,
		Endpoint:           e.Endpoint,
		FunctionName:       e.FunctionName,
		AgentID:            e.AgentID,
		RequestingFunction: e.RequestingFunction,
		Reason:             e.Reason,
		LLMTools:           e.LLMTools,
	}
	if e.HasDepIndex {
		w.DepIndex = &e.DepIndex
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes directly into the variant instead of pattern
// matching on payload shape after the fact.
func (e *MeshEvent) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case EventAgentRegistered, EventRegistrationFailed, EventDependencyAvailable,
		EventDependencyChanged, EventDependencyUnavailable, EventRegistryConnected,
		EventRegistryDisconnected, EventShutdown, EventLLMToolsUpdated,
		EventLLMProviderAvailable, EventLLMProviderUnavailable:
	default:
		return fmt.Errorf("mesh: unknown event kind %q", w.Kind)
	}
	*e = MeshEvent{
		Kind:               w.Kind,
		Capability:         w.Capability,
		Endpoint:           w.Endpoint,
		FunctionName:       w.FunctionName,
		AgentID:            w.AgentID,
		RequestingFunction: w.RequestingFunction,
		Reason:             w.Reason,
		LLMTools:           w.LLMTools,
	}
	if w.DepIndex != nil {
		e.DepIndex = *w.DepIndex
		e.HasDepIndex = true
	}
	return nil
}

// MatchesSlot reports whether this dependency-resolution event targets the
// given (consumer, slot) pair: an exact (requestingFunction, depIndex) match
// takes precedence; absent that, fall back to matching by capability alone.
func (e MeshEvent) MatchesSlot(consumerID string, slotIndex int, slotCapability string) bool {
	if e.RequestingFunction != "" && e.HasDepIndex {
		return e.RequestingFunction == consumerID && e.DepIndex == slotIndex
	}
	return e.Capability == slotCapability
}
