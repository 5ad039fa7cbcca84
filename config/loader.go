package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config).
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// SkipEnvSubstitution disables ${VAR} substitution inside the loaded file.
	SkipEnvSubstitution bool
	// SkipValidation disables the sanity checks Load runs after defaults.
	SkipValidation bool
}

// DefaultLoaderOptions returns the loader's default options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{ConfigDir: "config"}
}

// Load loads configuration with automatic environment detection: an
// optional .env file, then an environment-specific YAML file, falling back
// to default.yaml and then config.yaml, then environment variable
// overrides, which take precedence over anything read from a file.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	_ = godotenv.Load()

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	cfg, err := loadConfigFile(filepath.Join(options.ConfigDir, env+".yaml"))
	if err != nil {
		cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "default.yaml"))
		if err != nil {
			cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "config.yaml"))
			if err != nil {
				cfg = &Config{}
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}
	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadConfigFile loads a single config file, erroring if it does not exist.
func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides applies AEGIS_* environment variables, which
// take precedence over anything set in a config file.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("AEGIS_ROTATION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.RotationInterval = d
		}
	}
	if v := os.Getenv("AEGIS_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("AEGIS_MAX_FRAME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxFrameSize = n
		}
	}
	if v := os.Getenv("AEGIS_MAX_SKIPPED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxSkipped = n
		}
	}

	if v := os.Getenv("AEGIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AEGIS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AEGIS_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	if v := os.Getenv("AEGIS_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// validate rejects configurations the session could not run with.
func validate(cfg *Config) error {
	if cfg.Session.RotationInterval <= 0 {
		return fmt.Errorf("session.rotation_interval must be positive")
	}
	if cfg.Session.HeartbeatInterval <= 0 {
		return fmt.Errorf("session.heartbeat_interval must be positive")
	}
	if cfg.Session.MaxFrameSize <= 0 {
		return fmt.Errorf("session.max_frame_size must be positive")
	}
	if cfg.Session.MaxSkipped <= 0 {
		return fmt.Errorf("session.max_skipped must be positive")
	}
	return nil
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{ConfigDir: "config", Environment: environment})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
