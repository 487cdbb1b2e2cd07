package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults and environment overrides, and
report any errors.

Warnings, such as services shadowed by an earlier service with the same
host, are printed but do not fail validation.

Examples:
  # Validate incipit.yaml found from the current directory
  incipit validate

  # Validate a specific file
  incipit validate /etc/incipit/incipit.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfgFile = args[0]
	}

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %s is valid\n", path)
	fmt.Fprintf(out, "  Listen:   %s\n", cfg.ListenAddress())
	fmt.Fprintf(out, "  Services: %d\n", len(cfg.Services))
	if cfg.IncipitHost == "" {
		fmt.Fprintln(out, "  Dashboard: disabled (incipit_host not set)")
	} else {
		fmt.Fprintf(out, "  Dashboard: %s\n", cfg.IncipitHost)
	}

	for _, w := range cfg.Warnings() {
		fmt.Fprintf(out, "⚠ %s\n", w)
	}
	return nil
}
