package trace

import (
	"os"
	"strings"
)

const (
	envTracingEnabled = "MCP_MESH_DISTRIBUTED_TRACING_ENABLED"
	envStreamKey      = "MESH_TRACE_STREAM"
)

// EnabledFromEnv reports whether distributed tracing is switched on via
// MCP_MESH_DISTRIBUTED_TRACING_ENABLED. Absent or unrecognized values mean
// disabled.
func EnabledFromEnv() bool {
	switch strings.ToLower(os.Getenv(envTracingEnabled)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// StreamKeyFromEnv returns the MESH_TRACE_STREAM override, or "" when the
// default stream key applies.
func StreamKeyFromEnv() string {
	return os.Getenv(envStreamKey)
}
