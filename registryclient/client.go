// Package registryclient handles registration, heartbeats with
// change-diffing, and consumption/dispatch of the registry's mesh-event
// stream.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/telemetry"
)

// EndpointMode selects whether resolved dependency endpoints are used
// directly or routed through the registry's own reverse-proxy path
// ({registry}/proxy/{host:port}/mcp), for deployments where agents cannot
// reach each other but can reach the registry.
type EndpointMode int

const (
	EndpointModeDirect EndpointMode = iota
	EndpointModeRegistryProxy
)

// Config configures a Client.
type Config struct {
	RegistryURL  string
	HTTPClient   *http.Client
	EndpointMode EndpointMode
	Obs          *telemetry.Observability
}

// Client talks to the registry: registers the agent, drives a periodic
// heartbeat with smart diffing, and, via Start, returns a Handle whose
// Events channel carries the mesh-event feed.
type Client struct {
	cfg   Config
	http  *http.Client
	obs   *telemetry.Observability
	agent mesh.AgentDescriptor

	mu           sync.Mutex
	registered   bool
	lastTools    []mesh.ToolSpec
	desiredTools []mesh.ToolSpec // what heartbeatLoop advertises each tick; see SetDesiredTools
}

// New constructs a Client for the given resolved agent descriptor.
func New(cfg Config, agent mesh.AgentDescriptor) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	obs := cfg.Obs
	if obs == nil {
		obs = telemetry.New(telemetry.Bundle{})
	}
	return &Client{cfg: cfg, http: httpClient, obs: obs, agent: agent}
}

type registerRequest struct {
	Agent mesh.AgentDescriptor `json:"agent"`
	Tools []mesh.ToolSpec      `json:"tools"`
}

// Register submits the agent and its initial tool list. Failure is
// reported as a *mesh.RegistrationError, which the event loop surfaces as
// a registration_failed event rather than a fatal error — the agent keeps
// serving.
func (c *Client) Register(ctx context.Context, tools []mesh.ToolSpec) error {
	return c.obs.Track(ctx, telemetry.OpRegister, []any{"agent_id", c.agent.AgentID}, func(ctx context.Context) error {
		body, err := json.Marshal(registerRequest{Agent: c.agent, Tools: tools})
		if err != nil {
			return &mesh.RegistrationError{AgentID: c.agent.AgentID, Cause: err}
		}
		if err := c.post(ctx, "/agents", body); err != nil {
			return &mesh.RegistrationError{AgentID: c.agent.AgentID, Cause: err}
		}
		c.mu.Lock()
		c.registered = true
		c.lastTools = tools
		c.desiredTools = tools
		c.mu.Unlock()
		return nil
	})
}

// SetDesiredTools records the tool list heartbeatLoop should advertise on
// its next tick, independent of whatever tool list its goroutine closed
// over at Start. UpdateTools calls this before triggering an
// immediate out-of-band heartbeat, so periodic heartbeats afterward keep
// advertising the updated list instead of reverting to the original one.
func (c *Client) SetDesiredTools(tools []mesh.ToolSpec) {
	c.mu.Lock()
	c.desiredTools = tools
	c.mu.Unlock()
}

// DesiredTools returns the tool list most recently set via Register or
// SetDesiredTools.
func (c *Client) DesiredTools() []mesh.ToolSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desiredTools
}

// Deregister removes the agent from the registry. Safe to call even if
// Register never succeeded.
func (c *Client) Deregister(ctx context.Context) error {
	return c.obs.Track(ctx, telemetry.OpRegister, []any{"agent_id", c.agent.AgentID, "action", "deregister"}, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.RegistryURL+"/agents/"+c.agent.AgentID, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		return nil
	})
}

// Heartbeat sends the current tool list, but only if it differs from the
// last list actually sent, so transient re-evaluations don't thrash the
// registry with identical updates.
func (c *Client) Heartbeat(ctx context.Context, tools []mesh.ToolSpec) error {
	c.mu.Lock()
	changed := !toolListsEqual(c.lastTools, tools)
	c.mu.Unlock()
	if !changed {
		return nil
	}
	return c.obs.Track(ctx, telemetry.OpHeartbeat, []any{"agent_id", c.agent.AgentID}, func(ctx context.Context) error {
		body, err := json.Marshal(registerRequest{Agent: c.agent, Tools: tools})
		if err != nil {
			return err
		}
		if err := c.post(ctx, "/agents/"+c.agent.AgentID+"/heartbeat", body); err != nil {
			return err
		}
		c.mu.Lock()
		c.lastTools = tools
		c.mu.Unlock()
		return nil
	})
}

func (c *Client) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RegistryURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return nil
}

// ResolveEndpoint applies the configured EndpointMode to a dependency's
// resolved base endpoint. The registry's proxy path is keyed by host:port,
// so the scheme is stripped before embedding.
func (c *Client) ResolveEndpoint(dep mesh.ResolvedDependency) string {
	if c.cfg.EndpointMode == EndpointModeRegistryProxy {
		hostPort := strings.TrimPrefix(strings.TrimPrefix(dep.Endpoint, "http://"), "https://")
		return fmt.Sprintf("%s/proxy/%s", c.cfg.RegistryURL, hostPort)
	}
	return dep.Endpoint
}

// toolListsEqual compares ToolSpecs by deep structural equality. ToolSpec
// is a plain value type with no generated IDs, so reflect.DeepEqual over
// the full slice is exact.
func toolListsEqual(a, b []mesh.ToolSpec) bool {
	return reflect.DeepEqual(a, b)
}
