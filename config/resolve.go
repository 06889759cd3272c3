// Package config resolves an AgentDescriptor from environment variables,
// caller-supplied values, and defaults, following strict env > caller >
// default precedence. Resolution never fails except for a malformed
// MCP_MESH_HTTP_PORT, which is a fatal *mesh.ConfigError; every other
// malformed env value (the heartbeat interval) is treated as absent.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// RawConfig is the caller-supplied layer, before defaults or environment
// overrides are applied.
type RawConfig struct {
	Name              string
	Host              string
	Port              int
	Namespace         string
	RegistryURL       string
	HeartbeatInterval int
	Version           string
	Description       string
	AgentType         mesh.AgentType
}

const (
	envAgentName      = "MCP_MESH_AGENT_NAME"
	envHTTPHost       = "MCP_MESH_HTTP_HOST"
	envHTTPPort       = "MCP_MESH_HTTP_PORT"
	envNamespace      = "MCP_MESH_NAMESPACE"
	envRegistryURL    = "MCP_MESH_REGISTRY_URL"
	envHealthInterval = "MCP_MESH_HEALTH_INTERVAL"
)

const (
	defaultNamespace         = "default"
	defaultRegistryURL       = "http://localhost:8000"
	defaultHeartbeatInterval = 30
	defaultVersion           = "1.0.0"
)

// Resolve merges environment variables, the caller-supplied RawConfig, and
// defaults into an AgentDescriptor, in that precedence order. The only
// failure case is a malformed MCP_MESH_HTTP_PORT, reported as a fatal
// *mesh.ConfigError; every other recognized field's malformed env value
// is simply treated as absent (see pickInt).
func Resolve(raw RawConfig) (mesh.AgentDescriptor, error) {
	name := pick(os.Getenv(envAgentName), raw.Name, "agent")
	host := pick(os.Getenv(envHTTPHost), raw.Host, autoDetectHost())
	namespace := pick(os.Getenv(envNamespace), raw.Namespace, defaultNamespace)
	registryURL := pick(os.Getenv(envRegistryURL), raw.RegistryURL, defaultRegistryURL)
	version := pick("", raw.Version, defaultVersion)

	port, err := resolvePort(raw.Port)
	if err != nil {
		return mesh.AgentDescriptor{}, err
	}
	heartbeat := pickInt(os.Getenv(envHealthInterval), raw.HeartbeatInterval, defaultHeartbeatInterval)

	agentType := raw.AgentType
	if agentType == "" {
		agentType = mesh.AgentTypeProvider
	}

	return mesh.AgentDescriptor{
		AgentID:           name + "-" + randomHex4(),
		Name:              name,
		Version:           version,
		Description:       raw.Description,
		Port:              port,
		Host:              host,
		Namespace:         namespace,
		RegistryURL:       registryURL,
		HeartbeatInterval: heartbeat,
		AgentType:         agentType,
	}, nil
}

// resolvePort applies env > caller precedence for the HTTP port (the
// default is 0 either way — "not serving" is itself a legal port value).
// A malformed MCP_MESH_HTTP_PORT is not treated as absent; a non-integer
// port is a configuration mistake worth failing loudly on.
func resolvePort(caller int) (int, error) {
	raw := os.Getenv(envHTTPPort)
	if raw == "" {
		return caller, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &mesh.ConfigError{Field: envHTTPPort, Value: raw, Cause: err}
	}
	return v, nil
}

// pick returns the first non-empty of env, caller, default, in that order.
func pick(env, caller, def string) string {
	if env != "" {
		return env
	}
	if caller != "" {
		return caller
	}
	return def
}

// pickInt mirrors pick for integer fields. A malformed env value (not
// parseable as an integer) is treated as absent and falls through to the
// caller value, consistent with "never fails; missing values get defaults".
func pickInt(env string, caller int, def int) int {
	if env != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return v
		}
	}
	if caller != 0 {
		return caller
	}
	return def
}

// autoDetectHost returns the first non-loopback IPv4 address found on any
// interface, falling back to "localhost". This is the resolver's one
// permitted I/O: interface enumeration, not network calls.
func autoDetectHost() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		return ip4.String()
	}
	return "localhost"
}
