// Package routing maps the Host header of inbound requests to a Target:
// a backend socket address, incipit's own dashboard, or unknown.
//
// Resolution is a pure function of one configuration snapshot. ConfigRouter
// reads that snapshot from a config.Store with a single atomic load, so
// routing decisions stay consistent while the configuration is reloaded.
// StaticRouter and RouterFunc serve tests and fixed tables.
package routing
