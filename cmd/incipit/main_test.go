package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"incipit-hq/incipit/pkg/cli"
)

const testConfig = `domain: example.com
incipit_host: incipit.example.com
port: 8080
services:
  - name: web
    port: 3000
  - name: api
    host: web.example.com
    port: 3001
  - name: docs
    port: 3002
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "incipit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	origCfg := cfgFile
	t.Cleanup(func() {
		cfgFile = origCfg
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := writeTestConfig(t, testConfig)

	out, err := execute(t, "validate", path)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}

	for _, want := range []string{
		"✓ " + path + " is valid",
		"Listen:   0.0.0.0:8080",
		"Services: 3",
		"Dashboard: incipit.example.com",
		`⚠ services "web" and "api" share host "web.example.com"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommandFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "services: [\n"},
		{name: "unknown field", content: "domain: example.com\nlisten: 80\n"},
		{name: "bad port", content: "domain: example.com\nservices:\n  - name: web\n    port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestConfig(t, tt.content)

			_, err := execute(t, "validate", path)
			if err == nil {
				t.Fatal("validate should fail")
			}
			if code := cli.ExitCode(err); code != cli.ExitConfig {
				t.Errorf("ExitCode() = %d, want %d", code, cli.ExitConfig)
			}
		})
	}
}

func TestValidateCommandMissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d (err = %v)", code, cli.ExitConfig, err)
	}
}

func TestConfigPathSearchesUpwards(t *testing.T) {
	path := writeTestConfig(t, testConfig)
	nested := filepath.Join(filepath.Dir(path), "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)
	t.Setenv("INCIPIT_CONFIG", "")

	origCfg := cfgFile
	cfgFile = ""
	t.Cleanup(func() { cfgFile = origCfg })

	got, err := configPath()
	if err != nil {
		t.Fatalf("configPath() error = %v", err)
	}
	want, _ := filepath.EvalSymlinks(path)
	if resolved, _ := filepath.EvalSymlinks(got); resolved != want {
		t.Errorf("configPath() = %q, want %q", got, path)
	}
}

func TestVersionCommand(t *testing.T) {
	origVersion := Version
	Version = "1.2.3-test"
	t.Cleanup(func() { Version = origVersion })

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "Incipit 1.2.3-test") {
		t.Errorf("output = %q", out)
	}
	if info := versionInfo(); info.Version != "1.2.3-test" {
		t.Errorf("versionInfo().Version = %q", info.Version)
	}
}

func TestRoutesCommand(t *testing.T) {
	path := writeTestConfig(t, testConfig)

	out, err := execute(t, "routes", "--config", path, "--format", "csv")
	if err != nil {
		t.Fatalf("routes error = %v", err)
	}

	want := "HOST,SERVICE,TARGET\n" +
		"incipit.example.com,-,dashboard\n" +
		"web.example.com,web,backend(0.0.0.0:3000)\n" +
		"docs.example.com,docs,backend(0.0.0.0:3002)\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestBuildRouteTableForHosts(t *testing.T) {
	path := writeTestConfig(t, testConfig)
	origCfg := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = origCfg })

	cfg, _, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	table := buildRouteTable(cfg, []string{"docs.example.com", "incipit.example.com", "nope.example.com", "web.example.com"})

	want := [][]string{
		{"docs.example.com", "docs", "backend(0.0.0.0:3002)"},
		{"incipit.example.com", "-", "dashboard"},
		{"nope.example.com", "-", "unknown"},
		{"web.example.com", "web", "backend(0.0.0.0:3000)"},
	}
	rows := table.Rows()
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestProbeBackends(t *testing.T) {
	up, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatal(err)
	}
	defer up.Close()
	go func() {
		for {
			conn, err := up.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	closed, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatal(err)
	}
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()

	upPort := up.Addr().(*net.TCPAddr).Port
	content := "domain: example.com\nincipit_host: incipit.example.com\nservices:\n" +
		"  - name: up\n    port: " + strconv.Itoa(upPort) + "\n" +
		"  - name: down\n    port: " + strconv.Itoa(closedPort) + "\n"

	origCfg := cfgFile
	cfgFile = writeTestConfig(t, content)
	t.Cleanup(func() { cfgFile = origCfg })

	cfg, _, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	table := buildRouteTable(cfg, nil)
	var progress bytes.Buffer
	down := probeBackends(t.Context(), cfg, &table, time.Second, cli.NewProgressReporter(&progress, "Checking"))

	if down != 1 {
		t.Errorf("down = %d, want 1", down)
	}
	if h := table.Header(); h[len(h)-1] != "STATUS" {
		t.Errorf("Header() = %v, want STATUS column", h)
	}

	statuses := map[string]string{}
	for _, r := range table.Routes {
		statuses[r.Host] = r.Status
	}
	if statuses["up.example.com"] != "up" || statuses["down.example.com"] != "down" || statuses["incipit.example.com"] != "" {
		t.Errorf("statuses = %v", statuses)
	}
	if !strings.Contains(progress.String(), "(2/2)") {
		t.Errorf("progress = %q", progress.String())
	}
}
