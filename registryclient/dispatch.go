package registryclient

import (
	"context"

	"github.com/dhyansraj/mcp-mesh/deptable"
	"github.com/dhyansraj/mcp-mesh/mesh"
)

// ConsumerSlots describes one consumer's declared dependency slots, the
// minimal information Dispatch needs to match incoming events to table
// keys.
type ConsumerSlots struct {
	ConsumerID string
	Slots      []mesh.DependencySpec
}

// ProxyFactory builds a deptable.Proxy for a resolved dependency; supplied
// by the caller (agentruntime/routeruntime) so this package never imports
// the proxy package, keeping the dependency direction one-way.
type ProxyFactory func(dep mesh.ResolvedDependency, kwargs mesh.DependencyKwargs) deptable.Proxy

// Dispatch consumes h.Events() until the channel closes (terminal
// shutdown) or ctx is done, applying each event to table and invoking the
// onEvent hook the owning runtime needs for side effects applyEvent
// itself doesn't cover (e.g. narrowing an LLM tool's visible capability
// set on llm_tools_updated). consumers is called fresh on every event
// rather than captured once, so a caller whose consumer IDs change after
// Dispatch starts (the route runtime's route-ID rewrite) always matches
// events against live IDs rather than a stale snapshot. kwargsOf returns
// the per-slot kwargs configured at tool-registration time.
func Dispatch(
	ctx context.Context,
	h *Handle,
	table *deptable.Table,
	consumers func() []ConsumerSlots,
	kwargsOf func(consumerID string, slotIndex int) mesh.DependencyKwargs,
	newProxy ProxyFactory,
	onEvent func(mesh.MeshEvent),
) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.Events():
			if !ok {
				return
			}
			applyEvent(table, consumers(), kwargsOf, newProxy, ev)
			if onEvent != nil {
				onEvent(ev)
			}
			if ev.Kind == mesh.EventShutdown {
				return
			}
		}
	}
}

func applyEvent(
	table *deptable.Table,
	consumers []ConsumerSlots,
	kwargsOf func(consumerID string, slotIndex int) mesh.DependencyKwargs,
	newProxy ProxyFactory,
	ev mesh.MeshEvent,
) {
	switch ev.Kind {
	case mesh.EventDependencyAvailable, mesh.EventDependencyChanged, mesh.EventLLMProviderAvailable:
		// dependency_changed is treated identically to
		// dependency_available: both replace the slot's entry. A
		// mesh-delegated LLM provider is resolved through the same
		// per-slot dependency table as any other capability, so
		// llm_provider_available takes the same path.
		for _, c := range consumers {
			for slot, spec := range c.Slots {
				if !ev.MatchesSlot(c.ConsumerID, slot, spec.Capability) {
					continue
				}
				kwargs := kwargsOf(c.ConsumerID, slot)
				dep := mesh.ResolvedDependency{
					Capability:   ev.Capability,
					AgentID:      ev.AgentID,
					Endpoint:     ev.Endpoint,
					FunctionName: ev.FunctionName,
				}
				table.Set(mesh.DependencyKey{ConsumerID: c.ConsumerID, SlotIndex: slot}, spec.Capability, newProxy(dep, kwargs))
			}
		}
	case mesh.EventDependencyUnavailable, mesh.EventLLMProviderUnavailable:
		for _, c := range consumers {
			for slot, spec := range c.Slots {
				if !ev.MatchesSlot(c.ConsumerID, slot, spec.Capability) {
					continue
				}
				table.Remove(mesh.DependencyKey{ConsumerID: c.ConsumerID, SlotIndex: slot})
			}
		}
	case mesh.EventRegistryDisconnected:
		table.ClearAll()
	}
}
