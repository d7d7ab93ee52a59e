package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	storiesCreated  prometheus.Counter
	stylizeJobs     *prometheus.CounterVec
	cascadeDeletes  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	storiesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stories_created_total",
		Help: "Total stories submitted",
	})

	stylizeJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stylize_jobs_total",
		Help: "Stylize jobs processed, by outcome",
	}, []string{"outcome"})

	cascadeDeletes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cascade_deletes_total",
		Help: "Institution and user cascade deletions performed",
	})

	registry.MustRegister(requestDuration, requestTotal, storiesCreated, stylizeJobs, cascadeDeletes)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		storiesCreated:  storiesCreated,
		stylizeJobs:     stylizeJobs,
		cascadeDeletes:  cascadeDeletes,
	}
}

// Handler returns the Prometheus scrape handler.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// IncStoryCreated counts a submitted story.
func (s *MetricsService) IncStoryCreated() {
	s.storiesCreated.Inc()
}

// IncStylizeJob counts a processed stylize job.
func (s *MetricsService) IncStylizeJob(outcome string) {
	s.stylizeJobs.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// IncCascadeDelete counts a cascade deletion.
func (s *MetricsService) IncCascadeDelete() {
	s.cascadeDeletes.Inc()
}
