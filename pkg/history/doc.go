// Package history records the exchanges incipit proxies.
//
// Every forwarded request and every WebSocket tunnel produces a Record. The
// frontend hands records to a Recorder, which buffers them and writes them
// to a Storage backend in batches from a single worker goroutine:
//
//	store, err := storage.Open("sqlite", cfg.DBPath)
//	recorder := history.NewRecorder(store, history.RecorderConfig{
//	    BufferSize: cfg.History.BufferSize,
//	    Observer:   collector,
//	})
//	defer recorder.Close()
//
//	recorder.Enqueue(history.Record{Host: r.Host, Method: r.Method, ...})
//
// # Backends
//
// The storage subpackage provides an in-memory backend and a SQLite backend
// that runs on either the pure Go driver ("sqlite") or the cgo driver
// ("sqlite3"). The retention subpackage prunes old records on a cron
// schedule.
//
// # Backpressure
//
// Enqueue is non-blocking. When the buffer is full the record is dropped and
// counted; the proxy never waits on the history store.
package history
