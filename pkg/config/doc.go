// Package config provides configuration management for incipit.
//
// This package handles loading, validating, and hot-reloading the proxy
// configuration from a YAML file with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("incipit.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("incipit.yaml")
//
// FindConfigFile locates the file: INCIPIT_CONFIG if set, otherwise
// incipit.yaml or incipit.yml in the working directory or any parent.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention INCIPIT_SECTION_FIELD.
// For example:
//
//   - INCIPIT_PORT overrides port
//   - INCIPIT_PROXY_CONNECT_TIMEOUT overrides proxy.connect_timeout
//   - INCIPIT_SERVICES_API_PORT overrides the port of the service named "api"
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Values from YAML file
//  2. Environment variable overrides
//  3. Default values for anything still unset, and service hosts derived
//     as <name>.<domain>
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// A Store holds the active configuration as an immutable Snapshot behind an
// atomic pointer. A Watcher observes the file and installs a fresh snapshot
// whenever it changes:
//
//	store := config.NewStore(cfg, path)
//	watcher := config.NewWatcher(store, config.WatcherOptions{})
//	go watcher.Run(ctx)
//
//	cfg := store.Current() // wait-free, always a complete configuration
//
// A reload that fails to read, parse, or validate is logged and the previous
// snapshot stays active.
//
// # Example Configuration
//
//	domain: example.com
//	incipit_host: incipit.example.com
//	port: 80
//
//	services:
//	  - name: api          # served on api.example.com
//	    port: 3000
//	  - name: blog
//	    host: blog.example.org
//	    port: 4000
//	    repo:
//	      url: https://github.com/example/blog.git
//	    run_command: ./start.sh
package config
