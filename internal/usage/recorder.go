// Package usage records request metadata asynchronously. Nothing here can
// fail or slow a user-facing request.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aman-churiwal/ai-gateway/internal/metrics"
	"github.com/aman-churiwal/ai-gateway/internal/models"
)

// Writer persists a batch of entries.
type Writer interface {
	CreateBatch(ctx context.Context, entries []models.UsageLogEntry) error
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    uint64
}

type Recorder struct {
	writer Writer
	logger *slog.Logger
	opts   Options

	mu     sync.RWMutex
	closed bool
	ch     chan models.UsageLogEntry
	done   chan struct{}
}

func NewRecorder(writer Writer, opts Options, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}

	r := &Recorder{
		writer: writer,
		logger: logger,
		opts:   opts,
		ch:     make(chan models.UsageLogEntry, opts.BufferSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues entry without blocking. A full buffer or a closed recorder
// drops the entry.
func (r *Recorder) Record(entry models.UsageLogEntry) {
	if r == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.ch <- entry:
	default:
		metrics.UsageDropped.Inc()
		r.logger.Warn("usage_buffer_full", "operation", entry.Operation)
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	batch := make([]models.UsageLogEntry, 0, r.opts.BatchSize)
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-r.ch:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= r.opts.BatchSize {
				r.flush(batch)
				batch = make([]models.UsageLogEntry, 0, r.opts.BatchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = make([]models.UsageLogEntry, 0, r.opts.BatchSize)
			}
		}
	}
}

func (r *Recorder) flush(batch []models.UsageLogEntry) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	err := backoff.Retry(func() error {
		return r.writer.CreateBatch(ctx, batch)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, r.opts.MaxRetries), ctx))
	if err != nil {
		metrics.UsageDropped.Add(float64(len(batch)))
		r.logger.Warn("usage_db_save_failed", "entries", len(batch), "err", err)
	}
}

// Close stops accepting entries and waits for queued ones to be written,
// or for ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
