package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const exampleConfig = `
domain: example.com
incipit_host: incipit.example.com
addr: 127.0.0.1
port: 8080
services:
  - name: service0
    port: 1234
  - name: service1
    port: 9423
    repo:
      url: https://github.com/example/service1.git
    run_command: ./run.sh
  - name: service2
    host: other.example.org
    port: 6969
proxy:
  connect_timeout: 5s
reload:
  debounce: 50ms
telemetry:
  logging:
    level: debug
    format: text
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "incipit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, exampleConfig)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.ListenAddress() != "127.0.0.1:8080" {
		t.Errorf("expected listen address %q, got %q", "127.0.0.1:8080", cfg.ListenAddress())
	}
	if len(cfg.Services) != 3 {
		t.Fatalf("expected 3 services, got %d", len(cfg.Services))
	}
	if cfg.Services[0].Host != "service0.example.com" {
		t.Errorf("expected derived host, got %q", cfg.Services[0].Host)
	}
	if cfg.Services[2].Host != "other.example.org" {
		t.Errorf("expected explicit host, got %q", cfg.Services[2].Host)
	}
	if cfg.Services[1].Repo == nil || cfg.Services[1].Repo.Branch != "main" {
		t.Errorf("expected repo with default branch, got %+v", cfg.Services[1].Repo)
	}
	if cfg.Services[1].RunCommand != "./run.sh" {
		t.Errorf("expected run command passthrough, got %q", cfg.Services[1].RunCommand)
	}
	if cfg.Proxy.ConnectTimeout != 5*time.Second {
		t.Errorf("expected connect timeout 5s, got %v", cfg.Proxy.ConnectTimeout)
	}
	if cfg.Reload.Debounce != 50*time.Millisecond {
		t.Errorf("expected debounce 50ms, got %v", cfg.Reload.Debounce)
	}
	if cfg.RootDirectory != tmpDir {
		t.Errorf("expected root directory %q, got %q", tmpDir, cfg.RootDirectory)
	}
	if want := filepath.Join(tmpDir, "incipit.db"); cfg.DBPath != want {
		t.Errorf("expected db path %q, got %q", want, cfg.DBPath)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, ErrConfigRead) {
		t.Errorf("expected ErrConfigRead, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax error", "services: [\n  - name: a\n"},
		{"wrong type", "port: eighty\n"},
		{"unknown field", "prot: 80\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := LoadConfig(path)
			if !errors.Is(err, ErrConfigParse) {
				t.Errorf("expected ErrConfigParse, got %v", err)
			}
		})
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
services:
  - name: nohost
    port: 0
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("expected 2 field errors (host, port), got %d: %v", len(verr.Errors), verr.Errors)
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("expected empty file to load with defaults, got %v", err)
	}
	if cfg.ListenAddress() != "0.0.0.0:80" {
		t.Errorf("expected default listen address, got %q", cfg.ListenAddress())
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), exampleConfig)

	t.Setenv("INCIPIT_PORT", "9090")
	t.Setenv("INCIPIT_INCIPIT_HOST", "dash.example.com")
	t.Setenv("INCIPIT_PROXY_CONNECT_TIMEOUT", "2s")
	t.Setenv("INCIPIT_PROXY_EXPOSE_ERRORS", "false")
	t.Setenv("INCIPIT_SERVICES_SERVICE1_PORT", "7000")
	t.Setenv("INCIPIT_SERVICES_SERVICE0_HOST", "zero.example.net")
	t.Setenv("INCIPIT_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.IncipitHost != "dash.example.com" {
		t.Errorf("IncipitHost = %q, want dash.example.com", cfg.IncipitHost)
	}
	if cfg.Proxy.ConnectTimeout != 2*time.Second {
		t.Errorf("ConnectTimeout = %v, want 2s", cfg.Proxy.ConnectTimeout)
	}
	if cfg.Proxy.ShouldExposeErrors() {
		t.Error("expected expose_errors to be overridden to false")
	}
	if cfg.Services[1].Port != 7000 {
		t.Errorf("service1 port = %d, want 7000", cfg.Services[1].Port)
	}
	if cfg.Services[0].Host != "zero.example.net" {
		t.Errorf("service0 host = %q, want zero.example.net", cfg.Services[0].Host)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValueIgnored(t *testing.T) {
	path := writeConfig(t, t.TempDir(), exampleConfig)
	t.Setenv("INCIPIT_PORT", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want file value 8080", cfg.Port)
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Run("walks parents", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		root := t.TempDir()
		want := writeConfig(t, root, exampleConfig)
		nested := filepath.Join(root, "a", "b", "c")
		if err := os.MkdirAll(nested, 0755); err != nil {
			t.Fatal(err)
		}

		got, err := FindConfigFile(nested)
		if err != nil {
			t.Fatalf("FindConfigFile() error = %v", err)
		}
		if got != want {
			t.Errorf("FindConfigFile() = %q, want %q", got, want)
		}
	})

	t.Run("yml extension", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		root := t.TempDir()
		want := filepath.Join(root, "incipit.yml")
		if err := os.WriteFile(want, []byte(exampleConfig), 0644); err != nil {
			t.Fatal(err)
		}

		got, err := FindConfigFile(root)
		if err != nil {
			t.Fatalf("FindConfigFile() error = %v", err)
		}
		if got != want {
			t.Errorf("FindConfigFile() = %q, want %q", got, want)
		}
	})

	t.Run("environment wins", func(t *testing.T) {
		root := t.TempDir()
		writeConfig(t, root, exampleConfig)
		other := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(other, []byte(exampleConfig), 0644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvConfigPath, other)

		got, err := FindConfigFile(root)
		if err != nil {
			t.Fatalf("FindConfigFile() error = %v", err)
		}
		if got != other {
			t.Errorf("FindConfigFile() = %q, want %q", got, other)
		}
	})

	t.Run("environment points nowhere", func(t *testing.T) {
		t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := FindConfigFile(t.TempDir())
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		_, err := FindConfigFile(t.TempDir())
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "incipit.yaml") {
			t.Errorf("error should mention searched names: %v", err)
		}
	})
}
