package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsExisting(t *testing.T) {
	r := NewRegistry("deskrec")
	c1 := r.Counter("x_total", "x")
	c2 := r.Counter("x_total", "x")
	assert.Same(t, c1, c2)
	assert.Equal(t, "deskrec_x_total", c1.Name())
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("deskrec")
	r.Counter("b_total", "second").Add(3)
	r.Counter("a_total", "first").Inc()
	r.Gauge("depth", "queue depth").Set(7)
	h := r.Histogram("write_seconds", "latency", []float64{0.1, 1})
	h.ObserveDuration(50 * time.Millisecond)
	h.Observe(5)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Less(t, strings.Index(out, "deskrec_a_total"), strings.Index(out, "deskrec_b_total"))
	assert.Contains(t, out, "deskrec_a_total 1\n")
	assert.Contains(t, out, "deskrec_b_total 3\n")
	assert.Contains(t, out, "# TYPE deskrec_depth gauge\ndeskrec_depth 7\n")
	assert.Contains(t, out, `deskrec_write_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `deskrec_write_seconds_bucket{le="1"} 1`)
	assert.Contains(t, out, `deskrec_write_seconds_bucket{le="+Inf"} 2`)
	assert.Contains(t, out, "deskrec_write_seconds_count 2\n")
}

func TestHistogramBucketsSortedAndInclusive(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("size", "sizes", []float64{10, 1})
	h.Observe(1)
	h.Observe(10)
	h.Observe(11)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()
	assert.Less(t, strings.Index(out, `le="1"`), strings.Index(out, `le="10"`))
	assert.Contains(t, out, "size_bucket{le=\"1\"} 1\n")
	assert.Contains(t, out, "size_bucket{le=\"10\"} 2\n")
	assert.Contains(t, out, "size_bucket{le=\"+Inf\"} 3\n")
	assert.InDelta(t, 22.0/3, h.Mean(), 1e-9)
}

func TestPipelineSnapshot(t *testing.T) {
	p := NewPipeline()
	p.Dropped.Add(4)
	p.QueueDepth.Set(9)

	snap := p.Registry.Snapshot()
	assert.Equal(t, int64(4), snap["deskrec_events_dropped_total"])
	assert.Equal(t, int64(9), snap["deskrec_queue_depth"])
	assert.Equal(t, int64(0), snap["deskrec_events_written_total"])
	assert.InDelta(t, 0, p.BatchDuration.Mean(), 0)
}
