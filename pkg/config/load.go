package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File names searched for by FindConfigFile, in order.
var ConfigFileNames = []string{"incipit.yaml", "incipit.yml"}

// EnvConfigPath names the environment variable that points directly at a
// configuration file.
const EnvConfigPath = "INCIPIT_CONFIG"

var (
	// ErrConfigNotFound is returned when no configuration file can be located.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrConfigRead is returned when the configuration file cannot be read.
	ErrConfigRead = errors.New("failed to read configuration file")

	// ErrConfigParse is returned when the configuration file is not valid YAML
	// or does not match the configuration schema.
	ErrConfigParse = errors.New("failed to parse configuration file")
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	return load(path, false)
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention INCIPIT_SECTION_FIELD (e.g., INCIPIT_PROXY_CONNECT_TIMEOUT).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply environment variable overrides
// 3. Apply default values and derive service hosts
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, env bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrConfigRead, path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrConfigParse, path, err)
	}

	if env {
		applyEnvOverrides(cfg)
	}

	dir := ""
	if abs, err := filepath.Abs(path); err == nil {
		dir = filepath.Dir(abs)
	}
	ApplyDefaults(cfg, dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML into a Config without applying defaults. Unknown fields
// are rejected so that typos do not silently fall back to defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// An empty document decodes to io.EOF.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// FindConfigFile locates the configuration file. INCIPIT_CONFIG wins when it
// is set; otherwise start and each of its parents are searched for
// incipit.yaml or incipit.yml.
func FindConfigFile(start string) (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s=%s: %w", ErrConfigNotFound, EnvConfigPath, p, err)
		}
		return p, nil
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfigNotFound, err)
	}

	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: searched %s and its parents for %s",
				ErrConfigNotFound, start, strings.Join(ConfigFileNames, ", "))
		}
		dir = parent
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format INCIPIT_SECTION_FIELD. Services are
// addressed by upper-cased name, e.g. INCIPIT_SERVICES_API_PORT.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("INCIPIT_DOMAIN"); val != "" {
		cfg.Domain = val
	}
	if val := os.Getenv("INCIPIT_INCIPIT_HOST"); val != "" {
		cfg.IncipitHost = val
	}
	if val := os.Getenv("INCIPIT_ADDR"); val != "" {
		cfg.Addr = val
	}
	if val := os.Getenv("INCIPIT_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Port = i
		}
	}
	if val := os.Getenv("INCIPIT_ROOT_DIRECTORY"); val != "" {
		cfg.RootDirectory = val
	}
	if val := os.Getenv("INCIPIT_DB_PATH"); val != "" {
		cfg.DBPath = val
	}

	// Proxy overrides
	envDuration("INCIPIT_PROXY_CONNECT_TIMEOUT", &cfg.Proxy.ConnectTimeout)
	envDuration("INCIPIT_PROXY_HANDSHAKE_TIMEOUT", &cfg.Proxy.HandshakeTimeout)
	envDuration("INCIPIT_PROXY_RESPONSE_HEADER_TIMEOUT", &cfg.Proxy.ResponseHeaderTimeout)
	envDuration("INCIPIT_PROXY_READ_HEADER_TIMEOUT", &cfg.Proxy.ReadHeaderTimeout)
	envDuration("INCIPIT_PROXY_IDLE_TIMEOUT", &cfg.Proxy.IdleTimeout)
	envDuration("INCIPIT_PROXY_SHUTDOWN_TIMEOUT", &cfg.Proxy.ShutdownTimeout)
	if val := os.Getenv("INCIPIT_PROXY_MAX_CONNECTIONS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Proxy.MaxConnections = i
		}
	}
	envBoolPtr("INCIPIT_PROXY_EXPOSE_ERRORS", &cfg.Proxy.ExposeErrors)

	// Reload overrides
	envBoolPtr("INCIPIT_RELOAD_ENABLED", &cfg.Reload.Enabled)
	envDuration("INCIPIT_RELOAD_DEBOUNCE", &cfg.Reload.Debounce)
	if val := os.Getenv("INCIPIT_RELOAD_SCHEDULE"); val != "" {
		cfg.Reload.Schedule = val
	}

	// History overrides
	if val := os.Getenv("INCIPIT_HISTORY_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.History.Enabled = b
		}
	}
	if val := os.Getenv("INCIPIT_HISTORY_DRIVER"); val != "" {
		cfg.History.Driver = val
	}
	if val := os.Getenv("INCIPIT_HISTORY_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.History.RetentionDays = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("INCIPIT_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("INCIPIT_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	envBoolPtr("INCIPIT_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)

	// Per-service overrides
	for i := range cfg.Services {
		svc := &cfg.Services[i]
		prefix := "INCIPIT_SERVICES_" + envName(svc.Name) + "_"
		if val := os.Getenv(prefix + "PORT"); val != "" {
			if p, err := strconv.Atoi(val); err == nil {
				svc.Port = p
			}
		}
		if val := os.Getenv(prefix + "HOST"); val != "" {
			svc.Host = val
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envBoolPtr(key string, dst **bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = &b
		}
	}
}

// envName converts a service name to its environment variable form.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
