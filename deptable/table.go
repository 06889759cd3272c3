// Package deptable holds the thread-safe map from the composite key
// (consumerID, slotIndex) to the currently resolved dependency proxy.
package deptable

import (
	"sort"
	"sync"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// Entry pairs a Proxy with the capability name its slot declared, so
// Snapshot can report a capability -> proxy view.
type Entry struct {
	Capability string
	Proxy      Proxy
}

// Proxy is the minimal surface the dependency table stores per slot; it is
// satisfied by *proxy.Proxy without deptable importing the proxy package,
// avoiding an import cycle (proxy constructs Proxy instances; the agent
// runtime is what wires the two packages together).
type Proxy interface {
	Endpoint() string
}

// Table is the (consumerID, slotIndex) -> Entry map. Zero value is usable.
type Table struct {
	mu   sync.RWMutex
	data map[mesh.DependencyKey]Entry
}

// New constructs an empty Table.
func New() *Table {
	return &Table{data: make(map[mesh.DependencyKey]Entry)}
}

// Set installs or replaces the proxy at key. At most one proxy exists per
// key; Set always overwrites.
func (t *Table) Set(key mesh.DependencyKey, capability string, p Proxy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data == nil {
		t.data = make(map[mesh.DependencyKey]Entry)
	}
	t.data[key] = Entry{Capability: capability, Proxy: p}
}

// Remove deletes key if present; a no-op if absent.
func (t *Table) Remove(key mesh.DependencyKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data, key)
}

// Get returns the proxy at key, and whether one is present. An absent key
// means "unresolved", never a zero-value Proxy.
func (t *Table) Get(key mesh.DependencyKey) (Proxy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.data[key]
	if !ok {
		return nil, false
	}
	return e.Proxy, true
}

// ClearAll empties the table. Invoked on registry_disconnected:
// dependencies are not assumed to outlive the registry session.
func (t *Table) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = make(map[mesh.DependencyKey]Entry)
}

// Snapshot returns every resolved slot belonging to consumerID as a
// capability->Proxy map; unresolved slots are simply absent. The map
// carries no declaration order, and when two slots declare the same
// capability only the proxy of the higher slot index is kept. GetSlots
// gives per-slot positional values.
func (t *Table) Snapshot(consumerID string) map[string]Proxy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Proxy)
	type kv struct {
		idx int
		e   Entry
	}
	var matched []kv
	for k, e := range t.data {
		if k.ConsumerID == consumerID {
			matched = append(matched, kv{idx: k.SlotIndex, e: e})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].idx < matched[j].idx })
	for _, m := range matched {
		out[m.e.Capability] = m.e.Proxy
	}
	return out
}

// RenameConsumer moves every entry keyed by oldConsumerID to the same slot
// index under newConsumerID, leaving entries for other consumers untouched.
// Used by the route runtime when a provisional route ID is rewritten to
// its METHOD:/path form.
func (t *Table) RenameConsumer(oldConsumerID, newConsumerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if oldConsumerID == newConsumerID {
		return
	}
	for k, e := range t.data {
		if k.ConsumerID != oldConsumerID {
			continue
		}
		delete(t.data, k)
		t.data[mesh.DependencyKey{ConsumerID: newConsumerID, SlotIndex: k.SlotIndex}] = e
	}
}

// GetSlots returns, for each declared slot in order, the resolved Proxy
// or nil. This is the shape the agent runtime's positional dependency
// injection consumes.
func (t *Table) GetSlots(consumerID string, slotCount int) []Proxy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Proxy, slotCount)
	for i := 0; i < slotCount; i++ {
		if e, ok := t.data[mesh.DependencyKey{ConsumerID: consumerID, SlotIndex: i}]; ok {
			out[i] = e.Proxy
		}
	}
	return out
}
