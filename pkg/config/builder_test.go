package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with sensible defaults for testing.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{
		Domain:      "example.com",
		IncipitHost: "incipit.example.com",
	}
	ApplyDefaults(&cfg, "")
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance with defaults applied again so that
// services added later get their derived hosts.
func (b *ConfigBuilder) Build() *Config {
	ApplyDefaults(&b.cfg, "")
	return &b.cfg
}

// WithService appends a service. An empty host is derived from the domain.
func (b *ConfigBuilder) WithService(name, host string, port int) *ConfigBuilder {
	b.cfg.Services = append(b.cfg.Services, ServiceConfig{Name: name, Host: host, Port: port})
	return b
}

// WithIncipitHost sets the dashboard host.
func (b *ConfigBuilder) WithIncipitHost(host string) *ConfigBuilder {
	b.cfg.IncipitHost = host
	return b
}

// WithListen sets the listen address and port.
func (b *ConfigBuilder) WithListen(addr string, port int) *ConfigBuilder {
	b.cfg.Addr = addr
	b.cfg.Port = port
	return b
}

// WithConnectTimeout sets the upstream connect timeout.
func (b *ConfigBuilder) WithConnectTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.Proxy.ConnectTimeout = d
	return b
}

// WithLogLevel sets the logging level.
func (b *ConfigBuilder) WithLogLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// MinimalConfig returns the smallest valid configuration.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}

// servicesFixture returns the three-service routing table used across
// the routing and proxy tests.
func servicesFixture() *Config {
	return NewTestConfig().
		WithService("service0", "", 1234).
		WithService("service1", "", 9423).
		WithService("service2", "", 6969).
		Build()
}
