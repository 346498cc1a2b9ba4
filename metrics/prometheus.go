package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exports metrics through client_golang.
type Prometheus struct {
	requests     *prometheus.CounterVec
	requestBytes *prometheus.CounterVec
	fetchedBytes prometheus.Counter
	fragments    *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	tasks        *prometheus.CounterVec
	taskBytes    *prometheus.CounterVec
	taskLatency  *prometheus.HistogramVec
	filled       prometheus.Counter
	writeBacks   *prometheus.CounterVec
}

// NewPrometheus creates and registers the collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cubestore_requests_total",
			Help: "Dataset requests by operation and result",
		}, []string{"op", "result"}),
		requestBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cubestore_request_bytes_total",
			Help: "Bytes requested by successful dataset requests",
		}, []string{"op"}),
		fetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubestore_read_fetched_bytes_total",
			Help: "Bytes held by the fragments selected for reads",
		}),
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cubestore_request_fragments_total",
			Help: "Fragments written or selected by dataset requests",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cubestore_request_duration_seconds",
			Help:    "Dataset request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cubestore_backend_tasks_total",
			Help: "Backend I/O tasks by backend, operation and result",
		}, []string{"backend", "op", "result"}),
		taskBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cubestore_backend_bytes_total",
			Help: "Bytes moved by successful backend tasks",
		}, []string{"backend", "op"}),
		taskLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cubestore_backend_task_duration_seconds",
			Help:    "Backend I/O task latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		filled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubestore_filled_elements_total",
			Help: "Elements painted with the fill value",
		}),
		writeBacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cubestore_write_backs_total",
			Help: "Write-backs of expensive reads by result",
		}, []string{"result"}),
	}
	reg.MustRegister(p.requests, p.requestBytes, p.fetchedBytes, p.fragments, p.latency,
		p.tasks, p.taskBytes, p.taskLatency, p.filled, p.writeBacks)
	return p
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordWrite implements Collector.
func (p *Prometheus) RecordWrite(bytes int64, fragments int, duration time.Duration, err error) {
	p.requests.WithLabelValues(string(OpWrite), result(err)).Inc()
	p.latency.WithLabelValues(string(OpWrite)).Observe(duration.Seconds())
	if err == nil {
		p.requestBytes.WithLabelValues(string(OpWrite)).Add(float64(bytes))
		p.fragments.WithLabelValues(string(OpWrite)).Add(float64(fragments))
	}
}

// RecordRead implements Collector.
func (p *Prometheus) RecordRead(bytes, fetched int64, fragments int, duration time.Duration, err error) {
	p.requests.WithLabelValues(string(OpRead), result(err)).Inc()
	p.latency.WithLabelValues(string(OpRead)).Observe(duration.Seconds())
	if err == nil {
		p.requestBytes.WithLabelValues(string(OpRead)).Add(float64(bytes))
		p.fetchedBytes.Add(float64(fetched))
		p.fragments.WithLabelValues(string(OpRead)).Add(float64(fragments))
	}
}

// RecordTask implements Collector.
func (p *Prometheus) RecordTask(backend string, op Op, bytes int64, duration time.Duration, err error) {
	p.tasks.WithLabelValues(backend, string(op), result(err)).Inc()
	p.taskLatency.WithLabelValues(backend, string(op)).Observe(duration.Seconds())
	if err == nil {
		p.taskBytes.WithLabelValues(backend, string(op)).Add(float64(bytes))
	}
}

// RecordFill implements Collector.
func (p *Prometheus) RecordFill(elements int64) {
	p.filled.Add(float64(elements))
}

// RecordWriteBack implements Collector.
func (p *Prometheus) RecordWriteBack(_ int64, err error) {
	p.writeBacks.WithLabelValues(result(err)).Inc()
}
