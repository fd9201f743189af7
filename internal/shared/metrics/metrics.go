package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	uploadsTotal      atomic.Uint64
	uploadBytesTotal  atomic.Uint64
	fieldsDegraded    atomic.Uint64
	sweptObjectsTotal atomic.Uint64

	ocrRuns  = newLabeledCounter("backend", "outcome")
	jobRuns  = newLabeledCounter("status")
	messages = newLabeledCounter("outcome")
	durBucks = []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000}

	ocrDuration    = newHistogram(durBucks)
	fieldsDuration = newHistogram(durBucks)
)

// IncUpload counts one stored upload of size bytes.
func IncUpload(size int64) {
	uploadsTotal.Add(1)
	if size > 0 {
		uploadBytesTotal.Add(uint64(size))
	}
}

// IncOCR counts one OCR run for backend with outcome "ok" or "error".
func IncOCR(backend, outcome string) {
	ocrRuns.Inc(backend, outcome)
}

// IncJob counts a job reaching status.
func IncJob(status string) {
	jobRuns.Inc(status)
}

// IncWorkerMessage counts a queue message by outcome: received, completed,
// failed (left for redelivery) or dropped (unrecoverable).
func IncWorkerMessage(outcome string) {
	messages.Inc(outcome)
}

// IncFieldsDegraded counts an all-null fallback after a malformed model reply.
func IncFieldsDegraded() {
	fieldsDegraded.Add(1)
}

// AddSwept counts objects removed by the retention sweeper.
func AddSwept(n int) {
	if n > 0 {
		sweptObjectsTotal.Add(uint64(n))
	}
}

// ObserveOCRMs records OCR stage latency in milliseconds.
func ObserveOCRMs(value float64) {
	ocrDuration.Observe(max(value, 0))
}

// ObserveFieldsMs records field extraction latency in milliseconds.
func ObserveFieldsMs(value float64) {
	fieldsDuration.Observe(max(value, 0))
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "uploads_total", "Documents stored", uploadsTotal.Load())
	writeCounter(&buf, "upload_bytes_total", "Bytes stored", uploadBytesTotal.Load())
	writeLabeled(&buf, "ocr_runs_total", "OCR runs by backend and outcome", ocrRuns)
	writeLabeled(&buf, "ocr_jobs_total", "Jobs by final status", jobRuns)
	writeLabeled(&buf, "worker_messages_total", "Queue messages by outcome", messages)
	writeCounter(&buf, "fields_degraded_total", "Field extractions that fell back to nulls", fieldsDegraded.Load())
	writeCounter(&buf, "retention_swept_total", "Uploads removed by retention", sweptObjectsTotal.Load())
	writeHistogram(&buf, "ocr_duration_ms", "OCR stage duration in milliseconds", ocrDuration.Snapshot())
	writeHistogram(&buf, "fields_duration_ms", "Field extraction duration in milliseconds", fieldsDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	labels []string
	values map[string]uint64
	keys   map[string][]string
}

func newLabeledCounter(labels ...string) *labeledCounter {
	return &labeledCounter{
		labels: labels,
		values: map[string]uint64{},
		keys:   map[string][]string{},
	}
}

func (l *labeledCounter) Inc(values ...string) {
	series := fmt.Sprint(values)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[series]; !ok {
		l.keys[series] = append([]string(nil), values...)
	}
	l.values[series]++
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe stores each value in the first bucket that holds it; rendering
// accumulates, so counts stay per-bucket here.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeled(buf *bytes.Buffer, name, help string, l *labeledCounter) {
	l.mu.Lock()
	series := make([]string, 0, len(l.values))
	for key := range l.values {
		series = append(series, key)
	}
	sort.Strings(series)
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	for _, key := range series {
		values := l.keys[key]
		var labels bytes.Buffer
		for i, label := range l.labels {
			if i > 0 {
				labels.WriteByte(',')
			}
			fmt.Fprintf(&labels, "%s=%s", label, strconv.Quote(values[i]))
		}
		fmt.Fprintf(buf, "%s{%s} %d\n", name, labels.String(), l.values[key])
	}
	l.mu.Unlock()
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
