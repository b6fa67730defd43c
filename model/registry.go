package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Registry maps capabilities to endpoints with ordered fallback chains and
// tracks endpoint health for the LLM client.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaults     *DefaultsConfig
	health       *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Description explains what this capability is for.
	Description string `json:"description" yaml:"description"`

	// Preferred lists models in order of preference.
	Preferred []string `json:"preferred" yaml:"preferred"`

	// Fallback lists backup models if all preferred fail.
	Fallback []string `json:"fallback" yaml:"fallback"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the registered wire protocol (openai, dashscope, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL. Empty selects the provider default
	// (api.openai.com, the DashScope compatible endpoint, or local Ollama).
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// APIKeyEnv names the environment variable holding the credential.
	// Empty uses the provider default.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// DefaultsConfig holds default model settings.
type DefaultsConfig struct {
	// Model is used when a capability has no configuration.
	Model string `json:"model" yaml:"model"`
}

// NewRegistry creates a new model registry with the given configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults: &DefaultsConfig{
			Model: "default",
		},
	}
}

// NewDefaultRegistry returns the registry used when no configuration is
// provided. Matching goes to qwen-plus on the DashScope OpenAI-compatible
// endpoint, falling back to qwen-turbo. Both need QWEN_API_KEY, so a
// missing key is reported before any request. A local Ollama model serves
// the fast capability only.
func NewDefaultRegistry() *Registry {
	return &Registry{
		capabilities: map[Capability]*CapabilityConfig{
			CapabilityMatching: {
				Description: "Ontology property to table field judgments",
				Preferred:   []string{"qwen-plus"},
				Fallback:    []string{"qwen-turbo"},
			},
			CapabilityFast: {
				Description: "Quick responses, simple tasks",
				Preferred:   []string{"qwen-turbo"},
				Fallback:    []string{"qwen-local"},
			},
		},
		endpoints: map[string]*EndpointConfig{
			"qwen-plus": {
				Provider:  "dashscope",
				URL:       "https://dashscope.aliyuncs.com/compatible-mode/v1",
				Model:     "qwen-plus",
				APIKeyEnv: "QWEN_API_KEY",
				MaxTokens: 131072,
			},
			"qwen-turbo": {
				Provider:  "dashscope",
				URL:       "https://dashscope.aliyuncs.com/compatible-mode/v1",
				Model:     "qwen-turbo",
				APIKeyEnv: "QWEN_API_KEY",
				MaxTokens: 131072,
			},
			"qwen-local": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "qwen2.5:14b",
				MaxTokens: 32768,
			},
		},
		defaults: &DefaultsConfig{
			Model: "qwen-plus",
		},
	}
}

// Resolve returns the first preferred model for a capability.
func (r *Registry) Resolve(cap Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaultModel()
}

// GetFallbackChain returns all models for a capability in order of preference.
func (r *Registry) GetFallbackChain(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[cap]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaultModel()}
}

func (r *Registry) defaultModel() string {
	if r.defaults == nil {
		return "default"
	}
	return r.defaults.Model
}

// GetEndpoint returns the endpoint configuration for a model name, or nil.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(cap Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capabilities == nil {
		r.capabilities = make(map[Capability]*CapabilityConfig)
	}
	r.capabilities[cap] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	r.endpoints[name] = cfg
}

// SetDefault sets the default model.
func (r *Registry) SetDefault(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaults == nil {
		r.defaults = &DefaultsConfig{}
	}
	r.defaults.Model = model
}

// ListCapabilities returns all configured capabilities, sorted.
func (r *Registry) ListCapabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]Capability, 0, len(r.capabilities))
	for cap := range r.capabilities {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// ListEndpoints returns all configured endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every model named by a capability has an endpoint
// with a provider and model identifier.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, ep := range r.endpoints {
		if ep == nil {
			return fmt.Errorf("endpoint %q: missing configuration", name)
		}
		if ep.Provider == "" {
			return fmt.Errorf("endpoint %q: provider is required", name)
		}
		if ep.Model == "" {
			return fmt.Errorf("endpoint %q: model is required", name)
		}
	}

	for cap, cfg := range r.capabilities {
		if cfg == nil {
			continue
		}
		for _, name := range append(append([]string{}, cfg.Preferred...), cfg.Fallback...) {
			if _, ok := r.endpoints[name]; !ok {
				return fmt.Errorf("capability %s: unknown endpoint %q", cap, name)
			}
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler for the registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToConfig())
}

// UnmarshalJSON implements json.Unmarshaler for the registry.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	loaded := registryFromConfig(&cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities = loaded.capabilities
	r.endpoints = loaded.endpoints
	r.defaults = loaded.defaults
	return nil
}
