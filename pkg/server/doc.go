// Package server runs the proxy handler on the listening socket.
//
// It binds the configured address (failing with "can't bind to <addr>"),
// optionally caps concurrent connections with netutil.LimitListener, wraps
// the handler in the standard middleware chain and manages graceful
// shutdown.
//
// # Middleware Chain
//
//	RecoveryMiddleware -> RequestIDMiddleware -> LoggingMiddleware -> handler
//
// # Basic Usage
//
//	srv := server.NewServer(server.ConfigFrom(cfg, logger), frontend)
//	srv.RegisterOnShutdown(tunnel.CloseAll)
//
//	if err := srv.Listen(); err != nil {
//	    return err // can't bind to 0.0.0.0:80: ...
//	}
//	return srv.Start(ctx)
//
// Start blocks until ctx is cancelled and then calls Shutdown, which stops
// accepting, runs the registered shutdown functions and waits up to
// proxy.shutdown_timeout for in-flight requests.
//
// The bind address is read once; changing addr or port in a reloaded
// configuration has no effect until restart.
package server
