package config

import (
	"fmt"

	"github.com/c360studio/ontomap/model"
)

// overrideEndpoint is the registry name given to an endpoint built from
// model.endpoint / model.name.
const overrideEndpoint = "configured"

// ModelRegistry builds the model registry for llm mode. The registry file
// replaces the built-in defaults; an explicit endpoint or model name is
// placed first in the configured capability's chain.
func (c *Config) ModelRegistry() (*model.Registry, error) {
	registry := model.NewDefaultRegistry()
	if c.Model.RegistryFile != "" {
		loaded, err := model.LoadFromFile(c.Model.RegistryFile)
		if err != nil {
			return nil, fmt.Errorf("load model registry: %w", err)
		}
		registry = loaded
	}

	if c.Model.Endpoint != "" || c.Model.Name != "" {
		capability := model.Capability(c.Model.Capability)
		base := registry.GetEndpoint(registry.Resolve(capability))

		ep := &model.EndpointConfig{
			Provider:  c.Model.Provider,
			URL:       c.Model.Endpoint,
			Model:     c.Model.Name,
			APIKeyEnv: c.Model.APIKeyEnv,
		}
		if base != nil {
			if ep.URL == "" {
				ep.URL = base.URL
			}
			if ep.Model == "" {
				ep.Model = base.Model
			}
			ep.MaxTokens = base.MaxTokens
		}
		if ep.Provider == "" {
			ep.Provider = "dashscope"
		}

		registry.SetEndpoint(overrideEndpoint, ep)
		registry.SetCapability(capability, &model.CapabilityConfig{
			Description: "Configured endpoint",
			Preferred:   []string{overrideEndpoint},
			Fallback:    withoutName(registry.GetFallbackChain(capability), overrideEndpoint),
		})
	}

	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model registry: %w", err)
	}
	return registry, nil
}

func withoutName(chain []string, name string) []string {
	out := make([]string, 0, len(chain))
	for _, n := range chain {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
