package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Record metrics
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_records_written_total",
			Help: "Total number of fleet records created, updated or deleted",
		},
		[]string{"resource", "op"},
	)

	FillupsWithMPG = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_fillups_total",
			Help: "Fuel fillups saved, by whether mpg could be derived",
		},
		[]string{"mpg"},
	)

	FillupMPG = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_fillup_mpg",
			Help:    "Derived miles per gallon of saved fillups",
			Buckets: []float64{2, 4, 6, 8, 10, 15, 20, 30, 50},
		},
	)

	MPGRecomputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_mpg_recomputed_total",
			Help: "Fillups whose mpg was rewritten by a recompute pass",
		},
	)

	// Dashboard cache metrics
	DashboardCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_dashboard_cache_hits_total",
			Help: "Dashboard cache hits",
		},
		[]string{"view"},
	)

	DashboardCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_dashboard_cache_misses_total",
			Help: "Dashboard cache misses",
		},
		[]string{"view"},
	)

	DashboardBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_dashboard_build_duration_seconds",
			Help:    "Time to aggregate a dashboard view from the database",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"view"},
	)

	// Auth metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_auth_attempts_total",
			Help: "Login and register attempts",
		},
		[]string{"action", "result"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)

	// Location stream metrics
	LocationSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_location_subscribers",
			Help: "Open live location websocket connections",
		},
	)

	LocationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_locations_published_total",
			Help: "Location reports fanned out to subscribers",
		},
	)
)

// RecordHTTPMetrics records one served request.
func RecordHTTPMetrics(method, route, status string, durationSeconds float64) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordFillup records a saved fillup and its derived mpg, if any.
func RecordFillup(mpg *float64) {
	if mpg == nil {
		FillupsWithMPG.WithLabelValues("none").Inc()
		return
	}
	FillupsWithMPG.WithLabelValues("derived").Inc()
	FillupMPG.Observe(*mpg)
}

// RecordWrite counts a create, update or delete of a resource.
func RecordWrite(resource, op string) {
	RecordsWritten.WithLabelValues(resource, op).Inc()
}
