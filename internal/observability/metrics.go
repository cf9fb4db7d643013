package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "capture_inbox"

var (
	// JobsTotal считает обработанные задачи.
	// Labels: result (completed, retry, failed, lease_lost)
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total number of processed capture jobs by result",
		},
		[]string{"result"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Duration of capture pipeline runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	OCRFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "ocr_fallbacks_total",
			Help:      "Total number of OCR runs that produced fallback text",
		},
	)

	// CapturesByCategory считает завершённые снимки по категориям.
	CapturesByCategory = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "captures_done_total",
			Help:      "Total number of captures processed to DONE by category",
		},
		[]string{"category"},
	)

	// UploadsTotal - исходы загрузки.
	// Labels: outcome (created, duplicate, reprocess)
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "uploads_total",
			Help:      "Total number of uploaded files by outcome",
		},
		[]string{"outcome"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Current number of jobs per queue state",
		},
		[]string{"state"},
	)
)

func RecordJobResult(result string) {
	JobsTotal.WithLabelValues(result).Inc()
}

func RecordUpload(outcome string) {
	UploadsTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth обновляет gauge по снимку статистики очереди.
func SetQueueDepth(waiting, delayed, active, completed, failed int64) {
	QueueDepth.WithLabelValues("waiting").Set(float64(waiting))
	QueueDepth.WithLabelValues("delayed").Set(float64(delayed))
	QueueDepth.WithLabelValues("active").Set(float64(active))
	QueueDepth.WithLabelValues("completed").Set(float64(completed))
	QueueDepth.WithLabelValues("failed").Set(float64(failed))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
