package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

func TestResolve_EnvOverridesCallerOverridesDefault(t *testing.T) {
	os.Setenv(envAgentName, "env-name")
	defer os.Unsetenv(envAgentName)

	d, err := Resolve(RawConfig{Name: "caller-name"})
	require.NoError(t, err)
	require.Equal(t, "env-name", d.Name)

	os.Unsetenv(envAgentName)
	d, err = Resolve(RawConfig{Name: "caller-name"})
	require.NoError(t, err)
	require.Equal(t, "caller-name", d.Name)

	d, err = Resolve(RawConfig{})
	require.NoError(t, err)
	require.Equal(t, "agent", d.Name)
}

func TestResolve_PortZeroIsLegal(t *testing.T) {
	os.Unsetenv(envHTTPPort)
	d, err := Resolve(RawConfig{Name: "x", Port: 0})
	require.NoError(t, err)
	require.Equal(t, 0, d.Port)
}

func TestResolve_MalformedEnvPortIsFatalConfigError(t *testing.T) {
	os.Setenv(envHTTPPort, "not-an-int")
	defer os.Unsetenv(envHTTPPort)

	_, err := Resolve(RawConfig{Name: "x", Port: 9001})
	require.Error(t, err)
	var cfgErr *mesh.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, envHTTPPort, cfgErr.Field)
}

func TestResolve_AgentIDStableFormat(t *testing.T) {
	d, err := Resolve(RawConfig{Name: "alpha"})
	require.NoError(t, err)
	require.Regexp(t, `^alpha-[0-9a-f]{8}$`, d.AgentID)
}

func TestResolve_HeartbeatDefault(t *testing.T) {
	os.Unsetenv(envHealthInterval)
	d, err := Resolve(RawConfig{Name: "x"})
	require.NoError(t, err)
	require.Equal(t, 30, d.HeartbeatInterval)
}
