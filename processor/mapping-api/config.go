package mappingapi

import (
	"fmt"

	"github.com/c360studio/ontomap/mapping"
)

// Config holds configuration for the mapping-api component.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string `json:"addr"`

	// Mode is used when a match request does not name one.
	Mode string `json:"mode"`

	// Threshold is used when a match request does not carry one.
	Threshold float64 `json:"threshold"`

	// SkillName selects the skill document passed to the model in llm mode.
	SkillName string `json:"skill_name"`

	// BaseIRI is the default ABox and R2RML base IRI.
	BaseIRI string `json:"base_iri"`

	// OutputDir receives generated files when a request asks to save them.
	OutputDir string `json:"output_dir"`

	// MaxUploadSize limits multipart uploads in bytes.
	MaxUploadSize int64 `json:"max_upload_size"`

	// Version is reported by /api/version.
	Version string `json:"version"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8000",
		Mode:          string(mapping.ModeHeuristic),
		Threshold:     mapping.DefaultThreshold,
		SkillName:     "r2rml",
		BaseIRI:       "http://example.com/",
		OutputDir:     "data/abox",
		MaxUploadSize: 32 << 20,
		Version:       "dev",
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if _, err := mapping.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("mode: %w: %q", err, c.Mode)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %v", c.Threshold)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	return nil
}
