// Package routeruntime is the route-runtime variant of the agent runtime,
// for HTTP applications whose routes declare dependencies but expose no
// MCP tools. It shares the dependency table, trace propagation, and
// registry-dispatch machinery with agentruntime; the only differences are
// the absence of an MCP server and the route-table ID rewriting that
// turns provisional route IDs into METHOD:/path form.
package routeruntime

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/dhyansraj/mcp-mesh/agentruntime"
	"github.com/dhyansraj/mcp-mesh/config"
	"github.com/dhyansraj/mcp-mesh/deptable"
	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/proxy"
	"github.com/dhyansraj/mcp-mesh/registryclient"
	"github.com/dhyansraj/mcp-mesh/telemetry"
	"github.com/dhyansraj/mcp-mesh/trace"
)

// Handler3 is the 3-argument handler form: request, response, resolved
// dependencies keyed by capability.
type Handler3 func(w http.ResponseWriter, r *http.Request, deps map[string]agentruntime.Dependency)

// Handler4 additionally accepts a next callback supplied by the runtime;
// handler errors are reported by invoking it with a non-nil error. The
// runtime writes no response of its own for such an error.
type Handler4 func(w http.ResponseWriter, r *http.Request, deps map[string]agentruntime.Dependency, next func(error))

// Config configures a Runtime's Start sequence, mirroring agentruntime's
// Config minus anything MCP-server specific.
type Config struct {
	Raw          config.RawConfig
	TraceWriter  trace.StreamWriter
	TraceStream  string
	TraceEnabled bool
	EndpointMode registryclient.EndpointMode
	Obs          *telemetry.Observability
	AllowHeaders string
}

type routeEntry struct {
	id       string // provisional "route_N_UNKNOWN:UNKNOWN" until rewritten
	deps     []mesh.DependencySpec
	handler3 Handler3
	handler4 Handler4
	fn       http.HandlerFunc // the pointer chi.Walk matches against
}

// Runtime is an explicit per-process singleton owning the route table,
// registry session, and dependency table.
type Runtime struct {
	mu     sync.Mutex
	routes []*routeEntry

	descriptor mesh.AgentDescriptor
	configErr  error
	table      *deptable.Table
	publisher  *trace.Publisher
	obs        *telemetry.Observability
	registry   *registryclient.Client
	handle     *registryclient.Handle
	allow      map[string]struct{}
	cfg        Config

	router    chi.Router
	rewritten bool
	started   bool
}

// New resolves config into an AgentDescriptor (AgentType defaults to
// api-consumer for this variant) and returns an unstarted Runtime. A
// malformed MCP_MESH_HTTP_PORT is recorded and returned as a
// *mesh.ConfigError the first time Start runs, matching agentruntime.New's
// split between infallible construction and fatal start.
func New(cfg Config) *Runtime {
	if cfg.Raw.AgentType == "" {
		cfg.Raw.AgentType = mesh.AgentTypeAPIConsumer
	}
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

// Route registers a dependency-declaring route handler and returns the
// http.HandlerFunc to mount on the caller's router (e.g.
// `router.Get("/greet", rt.Route(deps, myHandler))`). Exactly one of
// handler3/handler4's zero value must be non-nil. Permitted only before
// Start, matching agentruntime's AddTool discipline.
func (r *Runtime) Route(deps []mesh.DependencySpec, handler any) (http.HandlerFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil, fmt.Errorf("mesh: Route called after Start")
	}

	entry := &routeEntry{
		id:   fmt.Sprintf("route_%d_UNKNOWN:UNKNOWN", len(r.routes)),
		deps: deps,
	}
	switch h := handler.(type) {
	case Handler3:
		entry.handler3 = h
	case Handler4:
		entry.handler4 = h
	default:
		return nil, fmt.Errorf("mesh: Route handler must be routeruntime.Handler3 or Handler4")
	}
	entry.fn = r.buildHandlerFunc(entry)
	r.routes = append(r.routes, entry)
	return entry.fn, nil
}

// buildHandlerFunc wraps one route's execution: extract incoming trace
// context, collect allow-listed propagated headers, build the
// capability -> proxy dependency map, and invoke the handler under a
// trace scope.
func (r *Runtime) buildHandlerFunc(entry *routeEntry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.rewriteRouteIDsOnce(req)

		tc, ok := trace.ParseTraceContext(req.Header)
		if !ok {
			tc = mesh.TraceContext{TraceID: trace.GenerateTraceID()}
		}
		spanID := trace.GenerateSpanID()
		headers := trace.SelectPropagatedHeaders(req.Header, r.allow)

		slots := r.table.GetSlots(entry.id, len(entry.deps))
		depsMap := make(map[string]agentruntime.Dependency, len(entry.deps))
		for i, spec := range entry.deps {
			if slots[i] == nil {
				continue
			}
			if d, ok := slots[i].(agentruntime.Dependency); ok {
				depsMap[spec.Capability] = d
			}
		}

		ctx := trace.WithHeaders(req.Context(), headers)
		_ = trace.RunWithTraceContext(ctx, mesh.TraceContext{TraceID: tc.TraceID, ParentSpanID: spanID}, func(ctx context.Context) error {
			req := req.WithContext(ctx)
			if entry.handler3 != nil {
				entry.handler3(w, req, depsMap)
				return nil
			}
			var handlerErr error
			entry.handler4(w, req, depsMap, func(err error) { handlerErr = err })
			return handlerErr
		})
	}
}

// rewriteRouteIDsOnce walks the mounted chi.Router's route table exactly
// once (on the first inbound request to any route) and rewrites every
// provisional "route_N_UNKNOWN:UNKNOWN" ID to "METHOD:/path", updating the
// dependency table's keys in place.
func (r *Runtime) rewriteRouteIDsOnce(_ *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rewritten || r.router == nil {
		return
	}
	r.rewritten = true

	byFn := make(map[uintptr]*routeEntry, len(r.routes))
	for _, e := range r.routes {
		byFn[reflect.ValueOf(e.fn).Pointer()] = e
	}

	changed := false
	_ = chi.Walk(r.router, func(method, route string, handler http.Handler, _ ...func(http.Handler) http.Handler) error {
		hf, ok := handler.(http.HandlerFunc)
		if !ok {
			return nil
		}
		e, ok := byFn[reflect.ValueOf(hf).Pointer()]
		if !ok {
			return nil
		}
		newID := method + ":" + route
		r.table.RenameConsumer(e.id, newID)
		e.id = newID
		changed = true
		return nil
	})

	if changed {
		go r.notifyUpdatedRoutes()
	}
}

// notifyUpdatedRoutes calls the handle's UpdateTools with the current
// (post-rewrite) route IDs, repurposing ToolSpec
// (FunctionName = route ID, Dependencies = the route's declared slots) as
// the registry-facing representation of a non-tool-exposing consumer's
// dependency graph — the registry client's smart diffing guarantees exactly
// one POST for this one actual content change, not one per route.
func (r *Runtime) notifyUpdatedRoutes() {
	if r.handle == nil {
		return
	}
	r.handle.UpdateTools(r.routeToolSpecs())
}

func (r *Runtime) routeToolSpecs() []mesh.ToolSpec {
	specs := make([]mesh.ToolSpec, len(r.routes))
	for i, e := range r.routes {
		specs[i] = mesh.ToolSpec{FunctionName: e.id, Dependencies: e.deps}
	}
	return specs
}

// Mount attaches router as the chi.Router this Runtime introspects for
// route-ID rewriting. Call before Start.
func (r *Runtime) Mount(router chi.Router) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.router = router
}

// Start registers the route-consumer's dependency graph with the registry
// and blocks running the event-dispatch loop until shutdown, matching
// agentruntime.Runtime.Start's construct-then-Start shape.
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
	routes := make([]*routeEntry, len(r.routes))
	copy(routes, r.routes)
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

	r.registry = registryclient.New(registryclient.Config{
		RegistryURL:  r.descriptor.RegistryURL,
		EndpointMode: r.cfg.EndpointMode,
		Obs:          obs,
	}, r.descriptor)

	handle, err := r.registry.Start(ctx, r.routeToolSpecs())
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

	// Read each route's id live rather than once: rewriteRouteIDsOnce
	// mutates e.id from its provisional "route_N_UNKNOWN:UNKNOWN" form to
	// "METHOD:/path" on the first inbound request, and a
	// dependency_available/unavailable arriving after that rewrite names
	// the rewritten id as requestingFunction — a snapshot taken once at
	// Start would keep matching against the stale provisional id forever.
	consumerSlots := func() []registryclient.ConsumerSlots {
		r.mu.Lock()
		defer r.mu.Unlock()
		out := make([]registryclient.ConsumerSlots, len(routes))
		for i, e := range routes {
			out[i] = registryclient.ConsumerSlots{ConsumerID: e.id, Slots: e.deps}
		}
		return out
	}
	kwargsOf := func(string, int) mesh.DependencyKwargs { return mesh.DefaultDependencyKwargs() }

	registryclient.Dispatch(runCtx, r.handle, r.table, consumerSlots, kwargsOf, r.newProxy, nil)
	return nil
}

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
