// Package pipeline carries finished records from the producers to the
// single writer that persists them.
package pipeline

import (
	"deskrec/internal/event"
	"deskrec/internal/metrics"
)

// DefaultQueueSize absorbs bursts of several seconds of input.
const DefaultQueueSize = 20_000

// Queue is a bounded multi-producer, single-consumer channel. Sends never
// block: a record offered to a full queue is dropped. The channel is never
// closed, so a late send after shutdown cannot panic.
type Queue struct {
	ch      chan event.Record
	metrics *metrics.Pipeline
}

// NewQueue creates a queue holding at most size records.
func NewQueue(size int, m *metrics.Pipeline) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if m == nil {
		m = metrics.NewPipeline()
	}
	return &Queue{ch: make(chan event.Record, size), metrics: m}
}

// TrySend offers r to the queue and reports whether it was accepted.
func (q *Queue) TrySend(r event.Record) bool {
	select {
	case q.ch <- r:
		q.metrics.Enqueued.Inc()
		return true
	default:
		q.metrics.Dropped.Inc()
		return false
	}
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Metrics returns the counters the queue reports into.
func (q *Queue) Metrics() *metrics.Pipeline {
	return q.metrics
}
