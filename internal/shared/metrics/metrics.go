package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysesSubmittedTotal atomic.Uint64
	pipelineStartedTotal   atomic.Uint64
	pipelineCompletedTotal atomic.Uint64
	pipelineFailedTotal    atomic.Uint64
	pipelineCancelledTotal atomic.Uint64
	pagesVisionTotal       atomic.Uint64
	pagesFastTotal         atomic.Uint64

	jobsReceivedTotal      atomic.Uint64
	jobsCompletedTotal     atomic.Uint64
	jobsFailedTotal        atomic.Uint64
	jobsUnrecoverableTotal atomic.Uint64

	stageDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncAnalysesSubmitted increments the submitted counter.
func IncAnalysesSubmitted() { analysesSubmittedTotal.Add(1) }

// IncPipelineStarted increments the started counter.
func IncPipelineStarted() { pipelineStartedTotal.Add(1) }

// IncPipelineCompleted increments the completed counter.
func IncPipelineCompleted() { pipelineCompletedTotal.Add(1) }

// IncPipelineFailed increments the failed counter.
func IncPipelineFailed() { pipelineFailedTotal.Add(1) }

// IncPipelineCancelled increments the cancelled counter.
func IncPipelineCancelled() { pipelineCancelledTotal.Add(1) }

// IncPagesVision counts pages routed to the vision extraction path.
func IncPagesVision(n int) {
	if n > 0 {
		pagesVisionTotal.Add(uint64(n))
	}
}

// IncPagesFast counts pages routed to the fast extraction path.
func IncPagesFast(n int) {
	if n > 0 {
		pagesFastTotal.Add(uint64(n))
	}
}

// IncJobsReceived counts queue messages picked up by the worker.
func IncJobsReceived() { jobsReceivedTotal.Add(1) }

// IncJobsCompleted counts queue messages fully processed and deleted.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed counts queue messages whose processing failed; they stay on
// the queue for redelivery.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncJobsUnrecoverable counts malformed messages deleted without processing.
func IncJobsUnrecoverable() { jobsUnrecoverableTotal.Add(1) }

// ObserveStageDurationMs records a pipeline stage duration in milliseconds.
func ObserveStageDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	stageDuration.Observe(value)
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
	writeCounter(&buf, "analyses_submitted_total", "Total analyses submitted", analysesSubmittedTotal.Load())
	writeCounter(&buf, "pipeline_started_total", "Total analysis pipelines started", pipelineStartedTotal.Load())
	writeCounter(&buf, "pipeline_completed_total", "Total analysis pipelines completed", pipelineCompletedTotal.Load())
	writeCounter(&buf, "pipeline_failed_total", "Total analysis pipelines failed", pipelineFailedTotal.Load())
	writeCounter(&buf, "pipeline_cancelled_total", "Total analysis pipelines cancelled", pipelineCancelledTotal.Load())
	writeCounter(&buf, "extraction_pages_vision_total", "Pages routed to the vision extraction path", pagesVisionTotal.Load())
	writeCounter(&buf, "extraction_pages_fast_total", "Pages routed to the fast extraction path", pagesFastTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Queue messages picked up by the worker", jobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Queue messages fully processed", jobsCompletedTotal.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Queue messages whose processing failed", jobsFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_unrecoverable_total", "Malformed queue messages deleted without processing", jobsUnrecoverableTotal.Load())
	writeHistogram(&buf, "stage_duration_ms", "Pipeline stage duration in milliseconds", stageDuration.Snapshot())
	return buf.String()
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

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
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
