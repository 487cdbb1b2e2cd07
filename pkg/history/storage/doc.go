// Package storage provides history.Storage backends.
//
//   - MemoryStorage: process memory, lost on restart
//   - SQLiteStorage: a SQLite file at db_path, through either
//     modernc.org/sqlite (driver "sqlite", no cgo) or
//     github.com/mattn/go-sqlite3 (driver "sqlite3", cgo)
//
// Open picks a backend from the history.driver configuration value.
package storage
