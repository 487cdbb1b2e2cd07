package routing

import (
	"incipit-hq/incipit/pkg/config"
)

// Router resolves the Host header of an inbound request to a Target.
//
// Router implementations must be safe for concurrent use, including while
// the underlying routing table is being replaced.
//
// Example usage:
//
//	router := routing.NewConfigRouter(store)
//
//	switch target := router.Resolve(r.Host); target.Kind() {
//	case routing.KindBackend:
//	    // forward to target.Addr()
//	case routing.KindDashboard:
//	    // serve the dashboard
//	default:
//	    // 404
//	}
type Router interface {
	// Resolve returns the target for host. Matching is exact: no case
	// folding and no port stripping.
	Resolve(host string) Target
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(host string) Target

// Resolve calls f(host).
func (f RouterFunc) Resolve(host string) Target {
	return f(host)
}

// Snapshotter provides the current configuration. config.Store implements it.
type Snapshotter interface {
	Current() *config.Config
}

// ConfigRouter resolves hosts against the current configuration of a
// Snapshotter. Each call reads exactly one snapshot, so a concurrent reload
// never produces a result mixing two configurations.
type ConfigRouter struct {
	source Snapshotter
	stats  *Stats
}

// NewConfigRouter creates a router backed by source.
func NewConfigRouter(source Snapshotter) *ConfigRouter {
	return &ConfigRouter{source: source, stats: NewStats()}
}

// Resolve implements Router.
func (r *ConfigRouter) Resolve(host string) Target {
	target := ResolveConfig(r.source.Current(), host)
	r.stats.Record(target)
	return target
}

// Stats returns the router's resolution statistics.
func (r *ConfigRouter) Stats() *Stats {
	return r.stats
}

// ResolveConfig resolves host against cfg:
//
//  1. host equal to a non-empty incipit_host is the Dashboard.
//  2. The first service whose host equals host is its Backend.
//  3. Anything else is Unknown.
func ResolveConfig(cfg *config.Config, host string) Target {
	if cfg == nil {
		return Unknown()
	}

	if cfg.IncipitHost != "" && host == cfg.IncipitHost {
		return Dashboard()
	}

	for _, svc := range cfg.Services {
		if svc.Host == host {
			return Backend(svc.Addr())
		}
	}

	return Unknown()
}

// StaticRouter resolves hosts from a fixed map. Hosts not in the map are
// Unknown.
type StaticRouter map[string]Target

// Resolve implements Router.
func (m StaticRouter) Resolve(host string) Target {
	if t, ok := m[host]; ok {
		return t
	}
	return Unknown()
}

// Routes returns the routing table of cfg in resolution order, dashboard
// first. Shadowed duplicates are omitted.
func Routes(cfg *config.Config) []Route {
	var routes []Route
	seen := make(map[string]bool)

	if cfg.IncipitHost != "" {
		routes = append(routes, Route{Host: cfg.IncipitHost, Target: Dashboard()})
		seen[cfg.IncipitHost] = true
	}

	for _, svc := range cfg.Services {
		if seen[svc.Host] {
			continue
		}
		seen[svc.Host] = true
		routes = append(routes, Route{Host: svc.Host, Service: svc.Name, Target: Backend(svc.Addr())})
	}

	return routes
}

// Route is one entry of a routing table.
type Route struct {
	Host    string `json:"host"`
	Service string `json:"service,omitempty"`
	Target  Target `json:"-"`
}
