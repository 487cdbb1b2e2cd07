// Incipit is a host-header reverse proxy for a fleet of local services.
//
// Every inbound request is routed by its Host header: the dashboard host
// serves incipit's own API, each service host is forwarded to its backend
// port, and WebSocket upgrades are tunneled. The configuration file is
// watched and reloaded without dropping connections.
//
// Usage:
//
//	# Start the proxy with incipit.yaml found in the current directory
//	incipit run
//
//	# Start with an explicit configuration file
//	incipit run --config /etc/incipit/incipit.yaml
//
//	# Check a configuration file
//	incipit validate
//
//	# Print the routing table and probe every backend
//	incipit routes --check
//
//	# Show recent proxied requests
//	incipit history list --host app.example.com
package main

import "os"

func main() {
	os.Exit(Execute())
}
