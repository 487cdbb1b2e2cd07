package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
)

// Drop reasons reported to the Observer.
const (
	DropBufferFull = "buffer_full"
	DropClosed     = "closed"
	DropStoreError = "store_error"
)

// Observer receives recorder outcomes. *metrics.Collector implements it.
type Observer interface {
	RecordHistoryWritten(n int)
	RecordHistoryDropped(reason string, n int)
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// BufferSize is the capacity of the pending record queue.
	// Default: 1024
	BufferSize int

	// BatchSize is the maximum number of records per Store call.
	// Default: 64
	BatchSize int

	// FlushInterval bounds how long a partial batch waits.
	// Default: 1 second
	FlushInterval time.Duration

	// WriteTimeout bounds each Store call.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxAttempts is the number of Store attempts per batch.
	// Default: 3
	MaxAttempts int

	// RetryMax caps the backoff between attempts.
	// Default: 2 seconds
	RetryMax time.Duration

	Observer Observer
	Logger   *slog.Logger
}

func (c *RecorderConfig) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Recorder writes history records to a Storage in the background.
//
// Enqueue never blocks the request path: when the buffer is full the record
// is dropped and counted. A single worker drains the buffer in batches and
// retries failed writes with exponential backoff.
//
// A nil *Recorder accepts and discards records, so callers need no
// "history enabled" checks.
type Recorder struct {
	storage Storage
	config  RecorderConfig
	logger  *slog.Logger

	records chan *Record
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewRecorder creates a recorder for storage and starts its worker.
func NewRecorder(storage Storage, config RecorderConfig) *Recorder {
	config.applyDefaults()

	r := &Recorder{
		storage: storage,
		config:  config,
		logger:  config.Logger.With("component", "history.recorder"),
		records: make(chan *Record, config.BufferSize),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("history recorder initialized",
		"buffer_size", config.BufferSize,
		"batch_size", config.BatchSize,
	)

	return r
}

// Enqueue offers rec for writing. It fills in ID and Time when unset and
// reports whether the record was accepted.
func (r *Recorder) Enqueue(rec Record) bool {
	if r == nil {
		return false
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	select {
	case <-r.done:
		r.drop(DropClosed, 1)
		return false
	default:
	}

	select {
	case r.records <- &rec:
		return true
	default:
		r.drop(DropBufferFull, 1)
		r.logger.Debug("history buffer full, dropping record",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
			"buffer_size", r.config.BufferSize,
		)
		return false
	}
}

// Dropped returns the number of records dropped so far.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Written returns the number of records stored so far.
func (r *Recorder) Written() uint64 {
	if r == nil {
		return 0
	}
	return r.written.Load()
}

// Storage returns the backend records are written to.
func (r *Recorder) Storage() Storage {
	if r == nil {
		return nil
	}
	return r.storage
}

// Close stops accepting records, drains the buffer and waits for the
// worker. It does not close the storage.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.logger.Info("history recorder shut down",
			"written", r.written.Load(),
			"dropped", r.dropped.Load(),
		)
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Record, 0, r.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.write(batch)
		batch = make([]*Record, 0, r.config.BatchSize)
	}

	for {
		select {
		case rec := <-r.records:
			batch = append(batch, rec)
			if len(batch) >= r.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-r.done:
			for {
				select {
				case rec := <-r.records:
					batch = append(batch, rec)
					if len(batch) >= r.config.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) write(batch []*Record) {
	b := &backoff.Backoff{
		Min:    50 * time.Millisecond,
		Max:    r.config.RetryMax,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
		err = r.storage.Store(ctx, batch)
		cancel()

		if err == nil {
			r.written.Add(uint64(len(batch)))
			if r.config.Observer != nil {
				r.config.Observer.RecordHistoryWritten(len(batch))
			}
			return
		}

		if attempt == r.config.MaxAttempts {
			break
		}
		d := b.Duration()
		r.logger.Warn("failed to store history batch, retrying",
			"error", err,
			"records", len(batch),
			"attempt", attempt,
			"retry_in", d,
		)
		time.Sleep(d)
	}

	r.logger.Error("failed to store history batch, dropping",
		"error", err,
		"records", len(batch),
	)
	r.drop(DropStoreError, len(batch))
}

func (r *Recorder) drop(reason string, n int) {
	r.dropped.Add(uint64(n))
	if r.config.Observer != nil {
		r.config.Observer.RecordHistoryDropped(reason, n)
	}
}
