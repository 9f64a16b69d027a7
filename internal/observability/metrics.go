package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/ghg-dashboard-service/internal/health"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Open-Meteo air-quality API call rate. Watch for: error vs success ratio.
	AirQualityAPICallsTotal *prometheus.CounterVec

	// Upstream latency per fetch. Watch for: p95 > 2s (upstream degradation).
	AirQualityAPIDuration *prometheus.HistogramVec

	// Retry attempts for upstream fetches. High retries = unstable upstream.
	AirQualityAPIRetriesTotal prometheus.Counter

	// Refresh cycles per region, labelled by outcome (success, error, discarded).
	RefreshCyclesTotal *prometheus.CounterVec

	// Completions discarded because a newer refresh was issued meanwhile.
	StaleResultsDiscardedTotal *prometheus.CounterVec

	// Controller state per region: 0=idle 1=fetching 2=rendered 3=errored.
	RefreshStateGauge *prometheus.GaugeVec

	// Latest classification severity per region and gas: 1=normal 2=caution 3=high.
	GasStatusGauge *prometheus.GaugeVec

	// Latest concentration per region and gas (ppm for co2, ppb for ch4).
	GasConcentrationGauge *prometheus.GaugeVec

	// Series cache hits by backend.
	CacheHitsTotal *prometheus.CounterVec

	// Series cache failures by operation.
	CacheErrorsTotal *prometheus.CounterVec

	// Dashboards served from stale cache after an upstream failure.
	StaleCacheServesTotal *prometheus.CounterVec

	// Upstream fetches avoided by coalescing concurrent requests per region.
	CoalescedFetchesTotal *prometheus.CounterVec

	// Rate limit denials (429). Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// CSV exports by window.
	ExportsTotal *prometheus.CounterVec

	// Circuit breaker transitions and current state for the upstream.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
	CircuitBreakerStateGauge       *prometheus.GaugeVec

	trafficGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	AirQualityAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airQualityApiCallsTotal",
			Help: "Total number of Open-Meteo air-quality API calls",
		},
		[]string{"status"},
	)
	AirQualityAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airQualityApiDurationSeconds",
			Help:    "Open-Meteo air-quality API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	AirQualityAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "airQualityApiRetriesTotal",
			Help: "Total number of retry attempts for air-quality API calls",
		},
	)
	RefreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshCyclesTotal",
			Help: "Refresh cycles by region and outcome (success, error, discarded)",
		},
		[]string{"region", "outcome"},
	)
	StaleResultsDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleResultsDiscardedTotal",
			Help: "Fetch completions discarded because a newer refresh superseded them",
		},
		[]string{"region"},
	)
	RefreshStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "refreshControllerState",
			Help: "Refresh controller state per region: 0=idle 1=fetching 2=rendered 3=errored",
		},
		[]string{"region"},
	)
	GasStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gasStatusSeverity",
			Help: "Latest classification severity per region and gas: 1=normal 2=caution 3=high",
		},
		[]string{"region", "gas"},
	)
	GasConcentrationGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gasConcentration",
			Help: "Latest concentration per region and gas (ppm for co2, ppb for ch4)",
		},
		[]string{"region", "gas"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesCacheHitsTotal",
			Help: "Series cache hits by payload kind",
		},
		[]string{"kind"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesCacheErrorsTotal",
			Help: "Series cache failures by operation",
		},
		[]string{"operation"},
	)
	StaleCacheServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleCacheServesTotal",
			Help: "Dashboards served from stale cache after upstream failure",
		},
		[]string{"region"},
	)
	CoalescedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coalescedFetchesTotal",
			Help: "Upstream fetches avoided by coalescing concurrent requests",
		},
		[]string{"region"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvExportsTotal",
			Help: "CSV exports by window (today, forecast, history)",
		},
		[]string{"window"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions by component",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per component: 0=closed 1=open 2=half_open",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		AirQualityAPICallsTotal, AirQualityAPIDuration, AirQualityAPIRetriesTotal,
		RefreshCyclesTotal, StaleResultsDiscardedTotal, RefreshStateGauge,
		GasStatusGauge, GasConcentrationGauge,
		CacheHitsTotal, CacheErrorsTotal, StaleCacheServesTotal,
		CoalescedFetchesTotal,
		RateLimitDeniedTotal, ExportsTotal,
		CircuitBreakerTransitionsTotal, CircuitBreakerStateGauge,
	)
}

// RegisterTrafficGauges registers sliding-window load and reject gauges for
// the rate-limited path. Call from main after config load; uses the same
// window as the health status computation.
func RegisterTrafficGauges(tracker *health.Tracker, window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(tracker.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(tracker.DenialCount(window)) },
			),
		)
	})
}

// RecordCircuitBreakerTransition records a state change for the component.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// RecordReading publishes the latest classified reading for a region.
func RecordReading(region, gas string, value float64, severity int) {
	GasConcentrationGauge.WithLabelValues(region, gas).Set(value)
	GasStatusGauge.WithLabelValues(region, gas).Set(float64(severity))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
