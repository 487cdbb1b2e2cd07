package history

import (
	"context"
	"time"
)

// Record describes one proxied exchange: a forwarded HTTP request, a
// WebSocket tunnel, a dashboard request or a rejected unknown host.
type Record struct {
	ID        string    `json:"id"`         // UUID v4
	RequestID string    `json:"request_id"` // X-Request-ID of the inbound request
	Time      time.Time `json:"time"`       // When the request was received

	Host   string `json:"host"`   // Inbound Host header
	Method string `json:"method"` // HTTP method
	Path   string `json:"path"`   // Request path without query

	Target  string `json:"target"`            // "backend", "dashboard" or "unknown"
	Backend string `json:"backend,omitempty"` // Backend address for backend targets

	Status       int           `json:"status"`        // Status sent to the client
	Duration     time.Duration `json:"duration"`      // Request or tunnel lifetime
	BytesWritten int64         `json:"bytes_written"` // Response body bytes
	WebSocket    bool          `json:"websocket"`     // Tunnel rather than plain HTTP

	Error string `json:"error,omitempty"` // Upstream failure, if any
}

// Query filters records. Zero values match everything.
type Query struct {
	Since *time.Time `json:"since,omitempty"` // Inclusive lower bound on Time
	Until *time.Time `json:"until,omitempty"` // Inclusive upper bound on Time

	Host    string `json:"host,omitempty"`
	Backend string `json:"backend,omitempty"`

	WebSocket *bool `json:"websocket,omitempty"`

	Limit  int `json:"limit,omitempty"`  // Max records to return (default 100)
	Offset int `json:"offset,omitempty"` // Skip N records
}

// DefaultQueryLimit applies when Query.Limit is zero.
const DefaultQueryLimit = 100

// Storage persists history records. Query returns records newest first.
//
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a batch of records.
	Store(ctx context.Context, records []*Record) error

	// Query returns records matching query, newest first.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching query.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching query and returns how many were removed.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Trim removes the oldest records so that at most keep remain.
	Trim(ctx context.Context, keep int64) (int64, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error
}

// Matches reports whether r satisfies the filters of q, ignoring
// pagination. Backends without a query language use it directly.
func (q *Query) Matches(r *Record) bool {
	if q == nil {
		return true
	}
	if q.Since != nil && r.Time.Before(*q.Since) {
		return false
	}
	if q.Until != nil && r.Time.After(*q.Until) {
		return false
	}
	if q.Host != "" && r.Host != q.Host {
		return false
	}
	if q.Backend != "" && r.Backend != q.Backend {
		return false
	}
	if q.WebSocket != nil && r.WebSocket != *q.WebSocket {
		return false
	}
	return true
}

// EffectiveLimit returns the page size to use for q.
func (q *Query) EffectiveLimit() int {
	if q == nil || q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}
