package registryclient

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// Handle is what Start returns: the live event feed plus the mutating
// operations UpdatePort, UpdateTools, and Shutdown.
type Handle struct {
	client *Client
	events chan mesh.MeshEvent
	cancel context.CancelFunc
	done   chan struct{}
}

// Events returns the channel mesh events arrive on, one at a time, in
// arrival order.
func (h *Handle) Events() <-chan mesh.MeshEvent { return h.events }

// UpdatePort re-registers the agent under a new listening port. Used when
// the resolved port changes after Start, e.g. an ephemeral port only
// known once the HTTP listener binds. Re-registration
// carries the client's current desired tool list, so a port update never
// regresses the tools most recently advertised via UpdateTools.
func (h *Handle) UpdatePort(port int) {
	if h.client == nil {
		return
	}
	h.client.mu.Lock()
	h.client.agent.Port = port
	tools := h.client.desiredTools
	h.client.mu.Unlock()
	if err := h.client.Register(context.Background(), tools); err != nil {
		h.client.obs.Logger.Warn(context.Background(), "mesh: re-registration after port update failed", "agent_id", h.client.agent.AgentID, "error", err.Error())
	}
}

// UpdateTools advertises a new tool list. Used by callers whose tool set
// changes after Start, such as the route runtime's post-rewrite route
// IDs. Records the list as heartbeatLoop's
// new desired state before heartbeating immediately, so the periodic loop
// keeps advertising it on every subsequent tick instead of reverting to the
// list captured at Start.
func (h *Handle) UpdateTools(tools []mesh.ToolSpec) {
	if h.client == nil {
		return
	}
	h.client.SetDesiredTools(tools)
	if err := h.client.Heartbeat(context.Background(), tools); err != nil {
		h.client.obs.Logger.Warn(context.Background(), "mesh: heartbeat after tool update failed", "agent_id", h.client.agent.AgentID, "error", err.Error())
	}
}

// Shutdown deregisters and drives the event stream to a terminal `shutdown`
// event; idempotent.
func (h *Handle) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := h.client.Deregister(ctx); err != nil {
		h.client.obs.Logger.Warn(ctx, "mesh: deregister on shutdown failed", "agent_id", h.client.agent.AgentID, "error", err.Error())
	}
	cancel()
	h.cancel()
	<-h.done
}

// reconnectConfig is the exponential-backoff policy for the SSE event
// stream's reconnection loop (500ms initial / 30s max / x2, no jitter);
// unlike proxy.go's call-level retry, reconnecting to a long-lived stream
// genuinely benefits from exponential backoff, since repeated failures here
// indicate a down registry, not a single flaky request.
type reconnectConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func defaultReconnectConfig() reconnectConfig {
	return reconnectConfig{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Multiplier: 2}
}

// Start begins the registry session: registers the agent, starts periodic
// heartbeats, and launches the event-stream consumption loop. Returns
// immediately with a Handle; all network activity happens in background
// goroutines.
func (c *Client) Start(ctx context.Context, tools []mesh.ToolSpec) (*Handle, error) {
	if err := c.Register(ctx, tools); err != nil {
		// A registration failure does not abort Start: the agent keeps
		// serving and continues heartbeats, so the caller still gets a
		// Handle and observes the failure as the handle's first event.
		h := c.newHandle(ctx, tools)
		h.events <- mesh.MeshEvent{Kind: mesh.EventRegistrationFailed, Reason: err.Error(), AgentID: c.agent.AgentID}
		return h, nil
	}

	h := c.newHandle(ctx, tools)
	h.events <- mesh.MeshEvent{Kind: mesh.EventAgentRegistered, AgentID: c.agent.AgentID}
	return h, nil
}

func (c *Client) newHandle(parent context.Context, initialTools []mesh.ToolSpec) *Handle {
	// Register may have failed (the caller still gets a Handle), in
	// which case desiredTools was never set there — set it here too so
	// heartbeatLoop's first tick advertises the agent's actual tool list
	// rather than nil.
	c.mu.Lock()
	if c.desiredTools == nil {
		c.desiredTools = initialTools
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		client: c,
		events: make(chan mesh.MeshEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go c.heartbeatLoop(ctx)
	go c.eventStreamLoop(ctx, h)

	return h
}

// heartbeatLoop sends a heartbeat every HeartbeatInterval seconds until ctx
// is cancelled, each time reading c.DesiredTools() rather than a list
// captured once at Start — UpdateTools mutates that desired state
// independently between ticks, and a stale capture here would otherwise
// cause the next tick to re-diff against (and overwrite) whatever UpdateTools
// most recently advertised. Heartbeat itself applies smart diffing.
func (c *Client) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(c.agent.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Heartbeat(ctx, c.DesiredTools()); err != nil {
				c.obs.Logger.Warn(ctx, "mesh: heartbeat failed", "agent_id", c.agent.AgentID, "error", err.Error())
			}
		}
	}
}

// eventStreamLoop consumes GET {registryURL}/agents/stream as an SSE feed,
// decoding each "data:" line as a MeshEvent and forwarding it to h.events.
// On any failure it emits registry_disconnected, backs off exponentially,
// and retries; a successful reconnect emits registry_connected.
func (c *Client) eventStreamLoop(ctx context.Context, h *Handle) {
	defer close(h.done)
	defer close(h.events)

	backoff := defaultReconnectConfig().Initial
	connectedOnce := false

	for {
		select {
		case <-ctx.Done():
			emit(h, mesh.MeshEvent{Kind: mesh.EventShutdown})
			return
		default:
		}

		terminal, err := c.streamOnce(ctx, h, &connectedOnce)
		if terminal {
			return
		}
		if ctx.Err() != nil {
			emit(h, mesh.MeshEvent{Kind: mesh.EventShutdown})
			return
		}
		if err != nil {
			emit(h, mesh.MeshEvent{Kind: mesh.EventRegistryDisconnected})
			c.obs.Logger.Warn(ctx, "mesh: event stream disconnected", "error", err.Error())
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			emit(h, mesh.MeshEvent{Kind: mesh.EventShutdown})
			return
		}
		cfg := defaultReconnectConfig()
		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if backoff > cfg.Max {
			backoff = cfg.Max
		}
	}
}

// streamOnce consumes one SSE connection. terminal reports that a
// server-sent shutdown event arrived, ending the session for good rather
// than triggering a reconnect.
func (c *Client) streamOnce(ctx context.Context, h *Handle, connectedOnce *bool) (terminal bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RegistryURL+"/agents/stream", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if *connectedOnce {
		emit(h, mesh.MeshEvent{Kind: mesh.EventRegistryConnected})
	}
	*connectedOnce = true

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var ev mesh.MeshEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			c.obs.Logger.Warn(ctx, "mesh: failed to decode mesh event", "error", err.Error())
			continue
		}
		if ev.Kind == mesh.EventShutdown {
			emit(h, ev)
			return true, nil
		}
		emit(h, ev)
	}
	return false, scanner.Err()
}

// emit blocks until the event is delivered rather than dropping it when
// the channel is full: the dispatcher must update the dependency table
// before acknowledging the next event, and dropping events would leave
// the table stale.
func emit(h *Handle, ev mesh.MeshEvent) {
	h.events <- ev
}
