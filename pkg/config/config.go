package config

import (
	"net"
	"strconv"
	"time"
)

// BackendHost is the address combined with a service port to form the
// backend socket address. Services are expected to listen on the same host
// as incipit.
const BackendHost = "0.0.0.0"

// Config is the root configuration structure for incipit.
//
// A Config is treated as immutable once it has been installed in a Store:
// readers hold on to the pointer they received and never observe a partial
// update. Build a new Config and call Store.Replace to change it.
type Config struct {
	// Domain is the base domain used to derive the host of services that do
	// not set one explicitly (<name>.<domain>).
	Domain string `yaml:"domain"`

	// IncipitHost is the host on which the incipit dashboard is served. If
	// empty the dashboard is not reachable, but services are still proxied.
	IncipitHost string `yaml:"incipit_host"`

	// Addr is the IP address to listen on.
	// Default: "0.0.0.0"
	Addr string `yaml:"addr"`

	// Port is the port to listen on.
	// Default: 80
	Port int `yaml:"port"`

	// RootDirectory is the root for relative paths. Defaults to the directory
	// containing the configuration file.
	RootDirectory string `yaml:"root_directory"`

	// DBPath is where the request history database is stored.
	// Default: <root_directory>/incipit.db
	DBPath string `yaml:"db_path"`

	// Services are the backends incipit routes to, in declaration order.
	// Resolution uses the first service whose host matches.
	Services []ServiceConfig `yaml:"services"`

	// Proxy contains forwarding and tunneling settings.
	Proxy ProxyConfig `yaml:"proxy"`

	// Reload contains hot reload settings.
	Reload ReloadConfig `yaml:"reload"`

	// History contains request history settings.
	History HistoryConfig `yaml:"history"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServiceConfig describes a single backend service.
type ServiceConfig struct {
	// Name of the service.
	Name string `yaml:"name"`

	// Host is matched exactly against the inbound Host header. If empty it
	// defaults to <name>.<domain>.
	Host string `yaml:"host"`

	// Port that the service listens on.
	Port int `yaml:"port"`

	// Repo is consumed by the service lifecycle manager, not by the proxy.
	Repo *RepoConfig `yaml:"repo,omitempty"`

	// RunCommand is consumed by the service lifecycle manager, not by the proxy.
	RunCommand string `yaml:"run_command,omitempty"`
}

// RepoConfig holds the git repository of a service.
type RepoConfig struct {
	// URL of the git repository. It needs to be accessible by the user running
	// incipit.
	URL string `yaml:"url"`

	// Branch to pull from.
	// Default: "main"
	Branch string `yaml:"branch"`
}

// Addr returns the backend socket address of the service.
func (s ServiceConfig) Addr() string {
	return net.JoinHostPort(BackendHost, strconv.Itoa(s.Port))
}

// ProxyConfig contains settings for forwarding HTTP requests and tunneling
// WebSockets.
type ProxyConfig struct {
	// ConnectTimeout bounds the TCP connect to a backend.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// HandshakeTimeout bounds each WebSocket handshake (client and upstream).
	// Default: 10s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// ResponseHeaderTimeout bounds the wait for upstream response headers.
	// Zero disables it, which suits long-polling backends.
	// Default: 0
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`

	// ReadHeaderTimeout bounds reading inbound request headers.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is how long inbound keep-alive connections stay open.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight requests
	// on shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxConnections caps concurrent inbound connections. Zero means no limit.
	MaxConnections int `yaml:"max_connections"`

	// ExposeErrors controls whether forwarding errors are written in 500
	// response bodies. Disable it when incipit faces untrusted clients.
	// Default: true
	ExposeErrors *bool `yaml:"expose_errors"`
}

// ShouldExposeErrors reports whether error details go into response bodies.
func (p ProxyConfig) ShouldExposeErrors() bool {
	return p.ExposeErrors == nil || *p.ExposeErrors
}

// ReloadConfig contains hot reload settings.
type ReloadConfig struct {
	// Enabled controls whether the configuration file is watched.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Debounce is the quiet period after a file event before reloading.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// Schedule is an optional cron expression (e.g. "@every 1m") on which the
	// file is re-read and reloaded if its content changed. It covers
	// filesystems that do not deliver change events.
	Schedule string `yaml:"schedule"`
}

// IsEnabled reports whether hot reload is enabled.
func (r ReloadConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// HistoryConfig contains settings for the request history store.
type HistoryConfig struct {
	// Enabled controls whether proxied exchanges are recorded.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Driver selects the storage backend: "sqlite" (pure Go), "sqlite3"
	// (cgo) or "memory".
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BufferSize is the number of records queued before new ones are dropped.
	// Default: 1024
	BufferSize int `yaml:"buffer_size"`

	// RetentionDays is how long records are kept. -1 keeps them forever;
	// zero means unset.
	// Default: 7
	RetentionDays int `yaml:"retention_days"`

	// MaxRecords caps the number of stored records. Zero means no cap.
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is the cron expression for retention pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// AccessLog writes a colored access line per forwarded HTTP request to
	// stdout.
	AccessLog bool `yaml:"access_log"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is where metrics are served on the dashboard host.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "incipit"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports whether metrics are collected.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ListenAddress returns the socket the proxy listens on.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

// Service returns the first service with the given name.
func (c *Config) Service(name string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

// Warnings returns non-fatal problems with the configuration, such as
// services sharing a host. Only the first of those services is reachable.
func (c *Config) Warnings() []string {
	var warnings []string

	seen := make(map[string]string, len(c.Services))
	for _, s := range c.Services {
		if first, ok := seen[s.Host]; ok {
			warnings = append(warnings, "services "+strconv.Quote(first)+" and "+strconv.Quote(s.Name)+
				" share host "+strconv.Quote(s.Host)+"; requests go to "+strconv.Quote(first))
			continue
		}
		seen[s.Host] = s.Name
	}

	if c.IncipitHost != "" {
		if name, ok := seen[c.IncipitHost]; ok {
			warnings = append(warnings, "service "+strconv.Quote(name)+" uses the dashboard host "+
				strconv.Quote(c.IncipitHost)+" and is unreachable")
		}
	}

	return warnings
}
