package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// Reload results reported to a ReloadObserver.
const (
	ReloadSuccess = "success"
	ReloadFailure = "failure"
)

// ReloadObserver is notified after every reload attempt.
type ReloadObserver interface {
	ObserveReload(result string, version uint64)
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is the quiet period after the last file event before the
	// configuration is reloaded (default: 100ms).
	Debounce time.Duration

	// Schedule is an optional cron expression on which the file is re-read
	// and reloaded if its content changed.
	Schedule string

	// Load produces a fresh configuration. Defaults to
	// LoadConfigWithEnvOverrides on the store's path.
	Load LoadFunc

	// Observer is notified of reload results. Optional.
	Observer ReloadObserver

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher reloads the configuration in a Store whenever its file changes.
//
// A failed reload leaves the previous snapshot in place. The watcher never
// stops the process: if the file cannot be watched, Run logs and returns.
type Watcher struct {
	store    *Store
	path     string
	dir      string
	opts     WatcherOptions
	logger   *slog.Logger
	debounce *Debouncer

	// notify carries reload requests. Capacity one coalesces bursts.
	notify chan struct{}

	hashMu   sync.Mutex
	lastHash []byte

	disabledReason string
}

// NewWatcher creates a watcher for the file behind store. Watching is
// disabled when the file's absolute path cannot be determined.
func NewWatcher(store *Store, opts WatcherOptions) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultReloadDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "config.watcher")

	w := &Watcher{
		store:    store,
		opts:     opts,
		logger:   logger,
		debounce: NewDebouncer(opts.Debounce),
		notify:   make(chan struct{}, 1),
	}

	path, err := resolveWatchPath(store.Path())
	if err != nil {
		w.disabledReason = err.Error()
		return w
	}
	w.path = path
	w.dir = filepath.Dir(path)

	if w.opts.Load == nil {
		w.opts.Load = func() (*Config, error) {
			return LoadConfigWithEnvOverrides(path)
		}
	}

	if data, err := os.ReadFile(path); err == nil {
		w.lastHash = hashContent(data)
	}

	return w
}

func resolveWatchPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("configuration was not loaded from a file")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("cannot determine absolute path of %q: %w", p, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("cannot stat %q: %w", abs, err)
	}
	return filepath.Clean(abs), nil
}

// Enabled reports whether the watcher has a file to watch.
func (w *Watcher) Enabled() bool {
	return w.path != ""
}

// Path returns the absolute path being watched, or "" when disabled.
func (w *Watcher) Path() string {
	return w.path
}

// Run watches the configuration file until ctx is cancelled. It returns nil
// when watching is disabled or cannot be started.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.Enabled() {
		w.logger.Warn("Config watcher disabled", "reason", w.disabledReason)
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create file watcher, hot reload disabled", "error", err)
		return nil
	}
	defer fsw.Close()

	// The parent directory is watched so that editors replacing the file
	// (write to temp, rename over) keep being observed.
	if err := fsw.Add(w.dir); err != nil {
		w.logger.Error("Failed to watch config directory, hot reload disabled",
			"dir", w.dir,
			"error", err,
		)
		return nil
	}
	defer w.debounce.Stop()

	if w.opts.Schedule != "" {
		scheduler, err := w.startSchedule()
		if err != nil {
			w.logger.Error("Invalid reload schedule, scheduled re-check disabled",
				"schedule", w.opts.Schedule,
				"error", err,
			)
		} else {
			defer scheduler.Stop()
		}
	}

	w.logger.Info("Config watcher started",
		"path", w.path,
		"debounce_ms", w.opts.Debounce.Milliseconds(),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reloadLoop(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Config watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				w.logger.Warn("Config watcher events channel closed")
				return nil
			}
			if !w.shouldProcessEvent(event) {
				continue
			}

			w.logger.Debug("Config file event detected",
				"path", event.Name,
				"op", event.Op.String(),
			)
			w.debounce.Trigger(w.trigger)

		case err, ok := <-fsw.Errors:
			if !ok {
				w.logger.Warn("Config watcher errors channel closed")
				return nil
			}
			w.logger.Error("Config watcher error", "error", err)
		}
	}
}

// shouldProcessEvent reports whether event concerns the tracked file and may
// have changed its content.
func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// trigger requests a reload without blocking. Pending requests coalesce.
func (w *Watcher) trigger() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.notify:
			w.reload()
		}
	}
}

// reload runs the load pipeline and installs the result. Failures keep the
// previous snapshot.
func (w *Watcher) reload() {
	if data, err := os.ReadFile(w.path); err == nil {
		w.setHash(hashContent(data))
	}

	previous := w.store.Current()
	snap, err := w.store.Reload(w.opts.Load)
	if err != nil {
		w.logger.Error("Config reload failed, keeping previous configuration",
			"path", w.path,
			"version", w.store.Version(),
			"error", err,
		)
		w.observe(ReloadFailure, w.store.Version())
		return
	}

	w.logger.Info("Config reloaded",
		"path", w.path,
		"version", snap.Version,
		"services", len(snap.Config.Services),
	)
	for _, warning := range snap.Config.Warnings() {
		w.logger.Warn("Config warning", "warning", warning)
	}
	if previous != nil && previous.ListenAddress() != snap.Config.ListenAddress() {
		w.logger.Warn("Listen address changed; restart incipit to apply",
			"current", previous.ListenAddress(),
			"configured", snap.Config.ListenAddress(),
		)
	}
	w.observe(ReloadSuccess, snap.Version)
}

func (w *Watcher) observe(result string, version uint64) {
	if w.opts.Observer != nil {
		w.opts.Observer.ObserveReload(result, version)
	}
}

// startSchedule registers the periodic content check.
func (w *Watcher) startSchedule() (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(w.opts.Schedule, w.checkContent); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// checkContent triggers a reload when the file content differs from the last
// content seen.
func (w *Watcher) checkContent() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("Scheduled config check failed", "path", w.path, "error", err)
		return
	}

	w.hashMu.Lock()
	changed := !bytes.Equal(w.lastHash, hashContent(data))
	w.hashMu.Unlock()

	if changed {
		w.logger.Debug("Scheduled config check found changes", "path", w.path)
		w.trigger()
	}
}

func (w *Watcher) setHash(h []byte) {
	w.hashMu.Lock()
	w.lastHash = h
	w.hashMu.Unlock()
}

func hashContent(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Debouncer implements event debouncing to prevent reload storms.
// It collects rapid events and triggers the callback only after a quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Trigger triggers the debouncer with a new event.
// The callback will be called after the debounce interval if no new events occur.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
			d.mu.Lock()
			cb := d.callback
			d.mu.Unlock()

			if cb != nil {
				cb()
			}
		}
	})
}

// Stop stops the debouncer and cancels any pending callbacks.
func (d *Debouncer) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
