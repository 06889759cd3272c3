package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional on-disk layer consumed before env/caller
// overrides are applied via Resolve: a baseline YAML config file that
// environment variables then take over.
type fileConfig struct {
	Name              string `yaml:"name"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Namespace         string `yaml:"namespace"`
	RegistryURL       string `yaml:"registryUrl"`
	HeartbeatInterval int    `yaml:"heartbeatInterval"`
	Version           string `yaml:"version"`
	Description       string `yaml:"description"`
}

// LoadFile reads a YAML agent-config file and produces the RawConfig layer
// Resolve expects as its caller-supplied argument. A missing file is
// returned as the os.ReadFile error; callers that treat the file as optional
// can test it with os.IsNotExist.
func LoadFile(path string) (RawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RawConfig{}, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return RawConfig{}, err
	}
	return RawConfig{
		Name:              fc.Name,
		Host:              fc.Host,
		Port:              fc.Port,
		Namespace:         fc.Namespace,
		RegistryURL:       fc.RegistryURL,
		HeartbeatInterval: fc.HeartbeatInterval,
		Version:           fc.Version,
		Description:       fc.Description,
	}, nil
}
