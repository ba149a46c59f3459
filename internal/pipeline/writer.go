package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deskrec/internal/event"
	"deskrec/internal/metrics"
)

// Defaults for WriterConfig.
const (
	DefaultBatchSize     = 200
	DefaultFlushInterval = 250 * time.Millisecond
)

// Sink is the storage the writer owns. Only the writer goroutine calls it
// once Start has returned.
type Sink interface {
	InsertSession(ctx context.Context, sess event.Session) error
	InsertEvents(ctx context.Context, records []event.Record) error
	SetVideoPath(ctx context.Context, sessionID, path string) error
	Close() error
}

// WriterConfig bounds batch size and latency.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// FinalFunc runs once the writer goroutine has committed its last batch
// and exited, and before the sink is closed.
type FinalFunc func(ctx context.Context, sink Sink) error

// Writer is the sole consumer of a Queue.
type Writer struct {
	queue   *Queue
	sink    Sink
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Pipeline

	mu      sync.Mutex
	finals  []FinalFunc
	started bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	closeErr error
}

// NewWriter creates a writer draining q into sink.
func NewWriter(q *Queue, sink Sink, cfg WriterConfig, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		queue:   q,
		sink:    sink,
		cfg:     cfg,
		logger:  logger.With("component", "writer"),
		metrics: q.Metrics(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Finally registers fn to run during Stop.
func (w *Writer) Finally(fn FinalFunc) {
	w.mu.Lock()
	w.finals = append(w.finals, fn)
	w.mu.Unlock()
}

// Start creates the session row and begins consuming. The session row is
// written exactly once per writer.
func (w *Writer) Start(ctx context.Context, sess event.Session) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("writer already started")
	}
	if err := w.sink.InsertSession(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	w.started = true
	go w.run()
	return nil
}

func (w *Writer) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]event.Record, 0, w.cfg.BatchSize)
	for {
		select {
		case r := <-w.queue.ch:
			batch = append(batch, r)
			if len(batch) >= w.cfg.BatchSize {
				batch = w.flush(batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				batch = w.flush(batch)
			}
		case <-w.stop:
			w.drain(batch)
			return
		}
	}
}

// drain empties the queue into final batches.
func (w *Writer) drain(batch []event.Record) {
	for {
		select {
		case r := <-w.queue.ch:
			batch = append(batch, r)
			if len(batch) >= w.cfg.BatchSize {
				batch = w.flush(batch)
			}
		default:
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

// flush commits one batch. A failed batch is logged and discarded; the
// records are not re-queued.
func (w *Writer) flush(batch []event.Record) []event.Record {
	start := time.Now()
	err := w.sink.InsertEvents(context.Background(), batch)
	w.metrics.BatchDuration.ObserveDuration(time.Since(start))
	w.metrics.QueueDepth.Set(int64(w.queue.Len()))

	if err != nil {
		w.metrics.BatchesFailed.Inc()
		w.metrics.Discarded.Add(uint64(len(batch)))
		w.logger.Error("batch write failed, discarding", "records", len(batch), "error", err)
	} else {
		w.metrics.Batches.Inc()
		w.metrics.Written.Add(uint64(len(batch)))
	}
	return batch[:0]
}

// Stop drains every queued record, runs the final hooks and closes the
// sink. Producers must have stopped sending for the drain to be complete.
// Stop is idempotent.
func (w *Writer) Stop() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		started := w.started
		finals := append([]FinalFunc(nil), w.finals...)
		w.mu.Unlock()

		if started {
			close(w.stop)
			<-w.done
		}
		for _, fn := range finals {
			if err := fn(context.Background(), w.sink); err != nil {
				w.logger.Warn("final write failed", "error", err)
			}
		}
		if err := w.sink.Close(); err != nil {
			w.logger.Error("close store failed", "error", err)
			w.closeErr = fmt.Errorf("close store: %w", err)
		}
	})
	return w.closeErr
}
