package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	TasksTotal      *prometheus.CounterVec
	PagesCrawled    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novacrawler_tasks_total",
			Help: "The total number of tasks submitted",
		}, []string{"type"}),
		PagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Name: "novacrawler_pages_crawled_total",
			Help: "The total number of pages fetched and stored",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novacrawler_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'fetch_failed', 'db_save_failed'
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novacrawler_task_duration_seconds",
			Help:    "Duration of task execution",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"type"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "novacrawler_queue_depth",
			Help: "Current number of tasks waiting for a runner",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novacrawler_http_requests_total",
			Help: "The total number of HTTP requests served",
		}, []string{"method", "path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novacrawler_http_request_duration_seconds",
			Help:    "Duration of HTTP request handling",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) IncTasksTotal(taskType string) {
	m.TasksTotal.WithLabelValues(taskType).Inc()
}

func (m *Metrics) IncPagesCrawled() {
	m.PagesCrawled.Inc()
}

func (m *Metrics) IncErrorsTotal(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) ObserveTaskDuration(taskType string, seconds float64) {
	m.TaskDuration.WithLabelValues(taskType).Observe(seconds)
}

func (m *Metrics) ObserveRequest(method, path, status string, seconds float64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(seconds)
}
