package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"incipit-hq/incipit/pkg/cli"
	"incipit-hq/incipit/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "incipit",
	Short: "Incipit - host-header reverse proxy for local services",
	Long: `Incipit routes HTTP and WebSocket traffic to local services by Host header.

A single listener serves every configured service:
  - <service>.<domain> is forwarded to 0.0.0.0:<port>
  - the incipit host serves the dashboard API, health and metrics
  - unknown hosts receive 404

The configuration file is watched and reloaded while the proxy runs.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: search for incipit.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configPath returns --config, or the first incipit.yaml found from the
// working directory upwards.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	path, err := config.FindConfigFile(".")
	if err != nil {
		return "", cli.WrapConfigError(err)
	}
	return path, nil
}

// loadConfig resolves and loads the configuration with environment
// overrides applied.
func loadConfig() (*config.Config, string, error) {
	path, err := configPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, path, cli.WrapConfigError(err)
	}
	return cfg, path, nil
}
