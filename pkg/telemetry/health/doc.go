// Package health provides the health check endpoints served on the incipit
// dashboard host.
//
// # Endpoints
//
//   - /health: Liveness probe - the process is running
//   - /ready: Readiness probe - configuration is loaded and dependencies such
//     as history storage are reachable
//   - /version: Build information - version, commit, build time
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("config", health.ConfigCheck(store))
//	checker.RegisterCheck("history", health.PingCheck("history", storage))
//
//	health.Register(mux, checker, health.NewVersionInfo(version, commit, date))
//
// Readiness checks run concurrently, each bounded by the checker timeout.
package health
