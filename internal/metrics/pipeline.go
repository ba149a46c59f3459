package metrics

// Pipeline holds the counters shared by the queue, the writer and the
// producers. Counting is observational; nothing here feeds back into
// producer behaviour.
type Pipeline struct {
	Registry *Registry

	Enqueued            *Counter
	Dropped             *Counter
	Written             *Counter
	Batches             *Counter
	BatchesFailed       *Counter
	Discarded           *Counter
	TextSpans           *Counter
	ClipboardSuppressed *Counter
	QueueDepth          *Gauge
	BatchDuration       *Histogram
}

// NewPipeline registers the pipeline metrics in a fresh registry.
func NewPipeline() *Pipeline {
	r := NewRegistry("deskrec")
	return &Pipeline{
		Registry:            r,
		Enqueued:            r.Counter("events_enqueued_total", "Records accepted by the queue"),
		Dropped:             r.Counter("events_dropped_total", "Records dropped on a full queue"),
		Written:             r.Counter("events_written_total", "Records committed to the event log"),
		Batches:             r.Counter("batches_written_total", "Batches committed"),
		BatchesFailed:       r.Counter("batches_failed_total", "Batches that failed and were discarded"),
		Discarded:           r.Counter("events_discarded_total", "Records lost with failed batches"),
		TextSpans:           r.Counter("text_spans_total", "Composed text spans emitted"),
		ClipboardSuppressed: r.Counter("clipboard_suppressed_total", "Clipboard changes suppressed as duplicates"),
		QueueDepth:          r.Gauge("queue_depth", "Records waiting in the queue at last flush"),
		BatchDuration:       r.Histogram("batch_write_seconds", "Time to commit one batch", nil),
	}
}
