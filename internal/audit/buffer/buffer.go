// Package buffer decouples audit event recording from durable persistence.
// Appends are cheap and never touch the store; a single background task
// flushes batches on a size threshold or timer, whichever comes first.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/sentra/internal/audit/domain"
	obsmetrics "github.com/smallbiznis/sentra/internal/observability/metrics"
	"go.uber.org/zap"
)

// FlushFunc persists one batch. A returned error re-queues the whole batch.
type FlushFunc func(ctx context.Context, events []*domain.AuditEvent) error

type Config struct {
	FlushSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.FlushSize <= 0 {
		c.FlushSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 10 * time.Second
	}
	return c
}

// Buffer holds not-yet-flushed audit events. The mutex guards only the
// slice; the flush call itself runs outside the lock so appends are never
// blocked on store latency.
type Buffer struct {
	cfg     Config
	flush   FlushFunc
	log     *zap.Logger
	metrics *obsmetrics.Metrics

	mu     sync.Mutex
	events []*domain.AuditEvent

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func New(cfg Config, flush FlushFunc, log *zap.Logger, metrics *obsmetrics.Metrics) *Buffer {
	return &Buffer{
		cfg:     cfg.withDefaults(),
		flush:   flush,
		log:     log.Named("audit.buffer"),
		metrics: metrics,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Append queues an event. It never blocks: when the size threshold is hit it
// only signals the flusher and returns.
func (b *Buffer) Append(event *domain.AuditEvent) {
	if event == nil {
		return
	}

	b.mu.Lock()
	b.events = append(b.events, event)
	full := len(b.events) >= b.cfg.FlushSize
	b.mu.Unlock()

	if full {
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Start launches the background flusher. It owns the flush loop exclusively;
// request-handling code only ever appends.
func (b *Buffer) Start() {
	go b.run()
}

func (b *Buffer) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushOnce()
		case <-b.wake:
			b.flushOnce()
		case <-b.stop:
			return
		}
	}
}

// Flush drains the buffer synchronously. Used on shutdown and in tests.
func (b *Buffer) Flush(ctx context.Context) error {
	return b.flushBatch(ctx)
}

// Close stops the flusher and drains whatever remains.
func (b *Buffer) Close(ctx context.Context) error {
	close(b.stop)
	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.flushBatch(ctx)
}

func (b *Buffer) flushOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
	defer cancel()
	if err := b.flushBatch(ctx); err != nil {
		b.log.Warn("audit flush failed, batch re-queued", zap.Error(err))
	}
}

func (b *Buffer) flushBatch(ctx context.Context) error {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.events
	b.events = nil
	b.mu.Unlock()

	if err := b.flush(ctx, batch); err != nil {
		// Audit loss is worse than temporary memory growth: put the batch
		// back at the front, ahead of anything appended meanwhile.
		b.mu.Lock()
		b.events = append(batch, b.events...)
		buffered := len(b.events)
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.RecordAuditFlush("error", buffered)
		}
		return err
	}

	if b.metrics != nil {
		b.metrics.RecordAuditFlush("ok", b.Len())
	}
	return nil
}
