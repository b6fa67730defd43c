// Package config provides configuration loading and management for ontomap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ontomap configuration
type Config struct {
	Matching MatchingConfig `yaml:"matching"`
	Model    ModelConfig    `yaml:"model"`
	Audit    AuditConfig    `yaml:"audit"`
	Skills   SkillsConfig   `yaml:"skills"`
	Server   ServerConfig   `yaml:"server"`
	Export   ExportConfig   `yaml:"export"`
	Data     DataConfig     `yaml:"data"`
}

// MatchingConfig configures the matching engine
type MatchingConfig struct {
	// Mode is heuristic or llm
	Mode string `yaml:"mode"`
	// Threshold is the acceptance threshold in [0,1]
	Threshold float64 `yaml:"threshold"`
	// BatchSize is the number of properties per model invocation
	BatchSize int `yaml:"batch_size"`
	// BatchTimeout bounds each model invocation
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// ModelConfig configures the external model used in llm mode
type ModelConfig struct {
	// Capability selects the registry capability (default: matching)
	Capability string `yaml:"capability"`
	// RegistryFile is an optional JSON or YAML model registry
	RegistryFile string `yaml:"registry_file"`
	// Endpoint overrides the base URL of the preferred matching endpoint
	Endpoint string `yaml:"endpoint"`
	// Name overrides the model identifier of the preferred matching endpoint
	Name string `yaml:"name"`
	// Provider is the wire protocol of the overridden endpoint
	Provider string `yaml:"provider"`
	// APIKeyEnv names the environment variable holding the credential
	APIKeyEnv string `yaml:"api_key_env"`
	// Temperature controls randomness (0.0-1.0, default: 0.2)
	Temperature float64 `yaml:"temperature"`
}

// AuditConfig configures where decision records go
type AuditConfig struct {
	File        string `yaml:"file"`
	SQLite      string `yaml:"sqlite"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// SkillsConfig configures the skill registry
type SkillsConfig struct {
	Root  string `yaml:"root"`
	Name  string `yaml:"name"`
	Watch bool   `yaml:"watch"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ExportConfig configures ABox and R2RML generation
type ExportConfig struct {
	BaseIRI   string `yaml:"base_iri"`
	OutputDir string `yaml:"output_dir"`
}

// DataConfig configures where uploaded data lands
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Matching: MatchingConfig{
			Mode:         "heuristic",
			Threshold:    0.5,
			BatchSize:    10,
			BatchTimeout: 60 * time.Second,
		},
		Model: ModelConfig{
			Capability:  "matching",
			Provider:    "dashscope",
			APIKeyEnv:   "QWEN_API_KEY",
			Temperature: 0.2,
		},
		Audit: AuditConfig{
			File:        "logs/match_reason.log",
			NATSSubject: "ontomap.audit.decision",
		},
		Skills: SkillsConfig{
			Root: "SKILLS",
			Name: "r2rml",
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		Export: ExportConfig{
			BaseIRI:   "http://example.com/",
			OutputDir: "data/abox",
		},
		Data: DataConfig{
			Dir: "data",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Matching.Mode {
	case "heuristic", "llm":
	default:
		return fmt.Errorf("matching.mode must be heuristic or llm, got %q", c.Matching.Mode)
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be between 0 and 1")
	}
	if c.Matching.BatchSize < 1 {
		return fmt.Errorf("matching.batch_size must be positive")
	}
	if c.Matching.BatchTimeout <= 0 {
		return fmt.Errorf("matching.batch_timeout must be positive")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Matching
	setString(&c.Matching.Mode, other.Matching.Mode)
	if other.Matching.Threshold != 0 {
		c.Matching.Threshold = other.Matching.Threshold
	}
	if other.Matching.BatchSize != 0 {
		c.Matching.BatchSize = other.Matching.BatchSize
	}
	if other.Matching.BatchTimeout != 0 {
		c.Matching.BatchTimeout = other.Matching.BatchTimeout
	}

	// Model
	setString(&c.Model.Capability, other.Model.Capability)
	setString(&c.Model.RegistryFile, other.Model.RegistryFile)
	setString(&c.Model.Endpoint, other.Model.Endpoint)
	setString(&c.Model.Name, other.Model.Name)
	setString(&c.Model.Provider, other.Model.Provider)
	setString(&c.Model.APIKeyEnv, other.Model.APIKeyEnv)
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}

	// Audit
	setString(&c.Audit.File, other.Audit.File)
	setString(&c.Audit.SQLite, other.Audit.SQLite)
	setString(&c.Audit.NATSURL, other.Audit.NATSURL)
	setString(&c.Audit.NATSSubject, other.Audit.NATSSubject)

	// Skills
	setString(&c.Skills.Root, other.Skills.Root)
	setString(&c.Skills.Name, other.Skills.Name)
	if other.Skills.Watch {
		c.Skills.Watch = true
	}

	setString(&c.Server.Addr, other.Server.Addr)
	setString(&c.Export.BaseIRI, other.Export.BaseIRI)
	setString(&c.Export.OutputDir, other.Export.OutputDir)
	setString(&c.Data.Dir, other.Data.Dir)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
