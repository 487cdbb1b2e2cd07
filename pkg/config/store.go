package config

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable, point-in-time view of the configuration.
type Snapshot struct {
	// Config is the configuration. It must not be modified.
	Config *Config

	// Version increases by one on every successful Replace. The first
	// snapshot has version 1.
	Version uint64

	// LoadedAt is when the snapshot was installed.
	LoadedAt time.Time

	// Path is the file the configuration was loaded from, if any.
	Path string
}

// LoadFunc produces a fresh configuration. It is used by Store.Reload.
type LoadFunc func() (*Config, error)

// Store holds the current configuration and hands out consistent snapshots.
//
// Reads are a single atomic load and never block. Writers replace the whole
// snapshot; readers holding an older snapshot keep a valid view of it.
type Store struct {
	current atomic.Pointer[Snapshot]
	path    string

	// mu serializes writers so versions are assigned in order.
	mu sync.Mutex
}

// NewStore creates a store holding cfg. path is the file cfg was loaded from
// and may be empty.
func NewStore(cfg *Config, path string) *Store {
	s := &Store{path: path}
	s.current.Store(&Snapshot{
		Config:   cfg,
		Version:  1,
		LoadedAt: time.Now(),
		Path:     path,
	})
	return s
}

// Current returns the current configuration.
func (s *Store) Current() *Config {
	return s.current.Load().Config
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Version returns the version of the current snapshot.
func (s *Store) Version() uint64 {
	return s.current.Load().Version
}

// Path returns the file the store was created from.
func (s *Store) Path() string {
	return s.path
}

// Replace installs cfg as the current configuration and returns the new
// snapshot. A nil cfg is rejected so the store is never left empty.
func (s *Store) Replace(cfg *Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cannot install nil configuration")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := &Snapshot{
		Config:   cfg,
		Version:  s.current.Load().Version + 1,
		LoadedAt: time.Now(),
		Path:     s.path,
	}
	s.current.Store(next)
	return next, nil
}

// Reload calls load and installs the result. If load fails, the current
// snapshot is kept and the error is returned.
func (s *Store) Reload(load LoadFunc) (*Snapshot, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return s.Replace(cfg)
}
