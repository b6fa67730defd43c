package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "ontomap.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/ontomap"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvFile is loaded from the working directory before env overrides apply
	EnvFile = ".env"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger  *slog.Logger
	getenv  func(string) string
	workDir string
	homeDir string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnv replaces os.Getenv for environment overrides.
func WithEnv(getenv func(string) string) LoaderOption {
	return func(l *Loader) {
		l.getenv = getenv
	}
}

// WithWorkDir sets the directory the project config search starts from.
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.workDir = dir
	}
}

// WithHomeDir sets the directory the user config is resolved against.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger, getenv: os.Getenv}
	for _, opt := range opts {
		opt(l)
	}
	if l.workDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			l.workDir = cwd
		}
	}
	if l.homeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			l.homeDir = home
		}
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/ontomap/config.yaml)
// 3. Project config (ontomap.yaml in current or parent directories), or
//    explicitPath when set
// 4. .env file, then environment variables
func (l *Loader) Load(explicitPath string) (*Config, error) {
	config := DefaultConfig()

	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := explicitPath
	if projectConfigPath == "" {
		projectConfigPath = l.findProjectConfig()
	}
	if projectConfigPath != "" {
		projectConfig, err := LoadFromFile(projectConfigPath)
		if err != nil {
			if explicitPath != "" {
				return nil, err
			}
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		} else {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		}
	} else {
		l.logger.Debug("No project config found")
	}

	l.loadEnvFile()
	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadEnvFile reads .env without overriding variables already set.
func (l *Loader) loadEnvFile() {
	if l.workDir == "" {
		return
	}
	path := filepath.Join(l.workDir, EnvFile)
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		l.logger.Warn("Failed to load env file", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	l.logger.Debug("Loaded env file", slog.String("path", path))
}

// applyEnv overlays environment variables onto the config.
func (l *Loader) applyEnv(c *Config) error {
	if v := l.getenv("ONTOMAP_MODE"); v != "" {
		c.Matching.Mode = v
	}
	if v := l.getenv("ONTOMAP_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.New("ONTOMAP_THRESHOLD must be a number")
		}
		c.Matching.Threshold = f
	}
	if v := l.getenv("ONTOMAP_BATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.New("ONTOMAP_BATCH_TIMEOUT must be a duration")
		}
		c.Matching.BatchTimeout = d
	}
	if v := l.getenv("QWEN_BASE_URL"); v != "" {
		c.Model.Endpoint = v
	}
	if v := l.getenv("QWEN_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := l.getenv("ONTOMAP_AUDIT_FILE"); v != "" {
		c.Audit.File = v
	}
	if v := l.getenv("NATS_URL"); v != "" {
		c.Audit.NATSURL = v
	}
	if v := l.getenv("DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	return nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return errors.New("cannot resolve home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

func (l *Loader) userConfigPath() string {
	if l.homeDir == "" {
		return ""
	}
	return filepath.Join(l.homeDir, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for ontomap.yaml in the work dir and its parents
func (l *Loader) findProjectConfig() string {
	if l.workDir == "" {
		return ""
	}

	dir := l.workDir
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
