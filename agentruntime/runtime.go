// Package agentruntime is the tool-provider agent runtime: it resolves
// config, hosts an MCP server, registers with the mesh registry, maintains
// the dependency table from the resulting event stream, and wraps every
// registered tool's execute function with trace propagation and positional
// dependency injection. Construction is side-effect free; Start performs
// all network activity and blocks until shutdown.
package agentruntime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dhyansraj/mcp-mesh/config"
	"github.com/dhyansraj/mcp-mesh/deptable"
	"github.com/dhyansraj/mcp-mesh/llmtool"
	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/proxy"
	"github.com/dhyansraj/mcp-mesh/registryclient"
	"github.com/dhyansraj/mcp-mesh/telemetry"
	"github.com/dhyansraj/mcp-mesh/trace"
)

// ExecuteFunc is a registered tool's user-supplied handler body. args has
// already had trace fields stripped; deps holds one entry per declared
// dependency slot in declaration order, nil where unresolved.
type ExecuteFunc func(ctx context.Context, args map[string]any, deps []Dependency) (any, error)

// Dependency is the callable handle an execute function receives for a
// resolved slot: endpoint metadata plus a call operation.
type Dependency interface {
	Endpoint() string
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Config configures a Runtime's auto-start sequence.
type Config struct {
	Raw          config.RawConfig
	TraceWriter  trace.StreamWriter // nil disables span publication
	TraceStream  string             // Redis Stream key; "" reads MESH_TRACE_STREAM, then trace.DefaultStreamKey
	TraceEnabled bool
	EndpointMode registryclient.EndpointMode
	Obs          *telemetry.Observability
	AllowHeaders string // MCP_MESH_PROPAGATE_HEADERS value; "" reads the env var
}

type registeredTool struct {
	spec mesh.ToolSpec
	fn   ExecuteFunc
}

// Runtime is the agent-side tool-provider runtime. Construct with New,
// register tools with AddTool, and call Start to run the blocking auto-start
// sequence and event-dispatch loop.
type Runtime struct {
	mu      sync.Mutex
	started bool

	descriptor mesh.AgentDescriptor
	configErr  error
	tools      []registeredTool

	table     *deptable.Table
	publisher *trace.Publisher
	obs       *telemetry.Observability
	registry  *registryclient.Client
	handle    *registryclient.Handle
	allow     map[string]struct{}
	cfg       Config

	llmMu       sync.RWMutex
	llmToolSets map[string]*llmtool.ToolSet

	server *mcpServer
}

// New resolves config into an AgentDescriptor and returns an unstarted
// Runtime. No side effects beyond config resolution happen here;
// everything network- or socket-facing happens inside Start. A malformed
// MCP_MESH_HTTP_PORT is recorded rather than returned here (New itself
// stays infallible) and is returned as a *mesh.ConfigError the first time
// Start runs.
func New(cfg Config) *Runtime {
	descriptor, err := config.Resolve(cfg.Raw)

	allowRaw := cfg.AllowHeaders
	if allowRaw == "" {
		allowRaw = os.Getenv("MCP_MESH_PROPAGATE_HEADERS")
	}

	return &Runtime{
		descriptor: descriptor,
		configErr:  err,
		table:      deptable.New(),
		cfg:        cfg,
		allow:      trace.ParseAllowList(allowRaw),
	}
}

// Descriptor returns the resolved agent descriptor.
func (r *Runtime) Descriptor() mesh.AgentDescriptor { return r.descriptor }

// AddTool registers a tool's ToolSpec and execute function. Permitted only
// before Start.
func (r *Runtime) AddTool(spec mesh.ToolSpec, fn ExecuteFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("mesh: AddTool(%s) called after Start", spec.FunctionName)
	}
	if len(spec.DependencyKwargs) != len(spec.Dependencies) {
		for len(spec.DependencyKwargs) < len(spec.Dependencies) {
			spec.DependencyKwargs = append(spec.DependencyKwargs, mesh.DefaultDependencyKwargs())
		}
	}
	r.tools = append(r.tools, registeredTool{spec: spec, fn: fn})
	return nil
}

// Start performs the auto-start sequence (init tracing, bind the MCP
// server, open the registry session, install signal handlers) and then
// blocks, running the event-dispatch loop until a shutdown event or
// signal arrives. Returns nil on a clean shutdown; a non-nil error means
// auto-start failed and the caller should exit with status 1.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("mesh: Start called twice")
	}
	if r.configErr != nil {
		r.mu.Unlock()
		return r.configErr
	}
	r.started = true
	specs := make([]registeredTool, len(r.tools))
	copy(specs, r.tools)
	r.mu.Unlock()

	obs := r.cfg.Obs
	if obs == nil {
		obs = telemetry.New(telemetry.Bundle{})
	}
	r.obs = obs
	streamKey := r.cfg.TraceStream
	if streamKey == "" {
		streamKey = trace.StreamKeyFromEnv()
	}
	r.publisher = trace.NewPublisher(r.cfg.TraceWriter, streamKey, r.cfg.TraceEnabled || trace.EnabledFromEnv(), obs)

	r.server = newMCPServer(r.descriptor)
	for _, rt := range specs {
		if err := r.server.registerTool(rt.spec, r.wrapExecute(rt.spec, rt.fn)); err != nil {
			return &mesh.ConfigError{Field: "tool", Value: rt.spec.FunctionName, Cause: err}
		}
	}
	// Port 0 means "not serving": the agent still registers and consumes
	// dependencies, it just exposes no MCP endpoint of its own.
	if r.descriptor.Port > 0 {
		httpServer, err := r.server.listenAndServe(r.descriptor.Host, r.descriptor.Port)
		if err != nil {
			return &mesh.ConfigError{Field: "port", Value: fmt.Sprint(r.descriptor.Port), Cause: err}
		}
		defer func() { _ = httpServer.Close() }()
	}

	r.registry = registryclient.New(registryclient.Config{
		RegistryURL:  r.descriptor.RegistryURL,
		EndpointMode: r.cfg.EndpointMode,
		Obs:          obs,
	}, r.descriptor)

	toolSpecs := make([]mesh.ToolSpec, len(specs))
	for i, rt := range specs {
		toolSpecs[i] = rt.spec
	}
	handle, err := r.registry.Start(ctx, toolSpecs)
	if err != nil {
		return err
	}
	r.handle = handle

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-sigCh:
			r.handle.Shutdown()
			cancel()
		case <-runCtx.Done():
		}
	}()

	consumers := r.consumerSlots(specs)
	kwargsOf := r.kwargsLookup(specs)
	snapshot := func() []registryclient.ConsumerSlots { return consumers }

	registryclient.Dispatch(runCtx, r.handle, r.table, snapshot, kwargsOf, r.newProxy, r.handleMeshEvent)
	return nil
}

// handleMeshEvent drives the LLM-tool-filtering side effect that
// dependency_available/unavailable table updates don't cover: each
// llm_tools_updated event carries the capability set visible to one LLM
// tool under its filter, and the tool's visible set is rebuilt from it.
// ev.RequestingFunction names which
// registered LLM tool (Base.FunctionName) the narrowed capability set
// applies to.
func (r *Runtime) handleMeshEvent(ev mesh.MeshEvent) {
	if ev.Kind == mesh.EventLLMToolsUpdated && ev.RequestingFunction != "" {
		r.toolSetFor(ev.RequestingFunction).SetVisible(ev.LLMTools)
	}
}

// toolSetFor returns (creating on first use) the ToolSet tracking which
// resolved capabilities are currently visible to the LLM tool named
// functionName, narrowed by the most recent llm_tools_updated event for it.
func (r *Runtime) toolSetFor(functionName string) *llmtool.ToolSet {
	r.llmMu.Lock()
	defer r.llmMu.Unlock()
	if r.llmToolSets == nil {
		r.llmToolSets = make(map[string]*llmtool.ToolSet)
	}
	ts, ok := r.llmToolSets[functionName]
	if !ok {
		ts = llmtool.NewToolSet()
		r.llmToolSets[functionName] = ts
	}
	return ts
}

func (r *Runtime) consumerSlots(specs []registeredTool) []registryclient.ConsumerSlots {
	out := make([]registryclient.ConsumerSlots, 0, len(specs))
	for _, rt := range specs {
		out = append(out, registryclient.ConsumerSlots{ConsumerID: rt.spec.FunctionName, Slots: rt.spec.Dependencies})
	}
	return out
}

func (r *Runtime) kwargsLookup(specs []registeredTool) func(consumerID string, slotIndex int) mesh.DependencyKwargs {
	byName := make(map[string]registeredTool, len(specs))
	for _, rt := range specs {
		byName[rt.spec.FunctionName] = rt
	}
	return func(consumerID string, slotIndex int) mesh.DependencyKwargs {
		rt, ok := byName[consumerID]
		if !ok || slotIndex >= len(rt.spec.DependencyKwargs) {
			return mesh.DefaultDependencyKwargs()
		}
		return rt.spec.DependencyKwargs[slotIndex]
	}
}

// newProxy builds a proxy.Proxy for a resolved dependency, wired with this
// runtime's publisher/observability/agent metadata, honoring the
// configured direct-vs-registry-proxy endpoint mode.
func (r *Runtime) newProxy(dep mesh.ResolvedDependency, kwargs mesh.DependencyKwargs) deptable.Proxy {
	endpoint := dep.Endpoint
	if r.registry != nil {
		endpoint = r.registry.ResolveEndpoint(dep)
	}
	return proxy.New(endpoint, dep.Capability, dep.FunctionName, kwargs,
		proxy.WithPublisher(r.publisher),
		proxy.WithObservability(r.obs),
		proxy.WithAgentDescriptor(r.descriptor),
	)
}
