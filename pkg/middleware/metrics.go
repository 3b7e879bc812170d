package middleware

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/campusdesk/pkg/store"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "campusdesk").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "campusdesk",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	actionsTotal     *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	violationsTotal  *prometheus.CounterVec
	toastsActive     prometheus.Gauge
	wsClients        prometheus.Gauge
	wsErrors         *prometheus.CounterVec
}

// globalMetrics is created by the first call to Prometheus.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "actions_total",
			Help:        "Total number of dispatched actions",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "status"}),

		dispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Time spent in middleware and reducers per dispatch",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		violationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "serializable_violations_total",
			Help:        "Non-serializable values found in dispatched actions",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		toastsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "toasts_active",
			Help:        "Number of visible toasts",
			ConstLabels: config.ConstLabels,
		}),

		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_clients",
			Help:        "Number of connected live-feed clients",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total live-feed errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// Prometheus creates store middleware that counts and times every dispatch.
// Metrics are registered once per process; later calls reuse them.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	mw := middleware.Prometheus(middleware.WithRegistry(reg))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
func Prometheus(opts ...MetricsOption) store.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(store.API) func(next store.Dispatcher) store.Dispatcher {
		return func(next store.Dispatcher) store.Dispatcher {
			return func(action store.Action) (store.Action, error) {
				start := time.Now()
				out, err := next(action)
				m.dispatchDuration.Observe(time.Since(start).Seconds())

				status := "success"
				if err != nil {
					status = "error"
				}
				m.actionsTotal.WithLabelValues(action.Type, status).Inc()
				return out, err
			}
		}
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordViolation counts a serializability violation. It matches
// store.Options.OnViolation.
func RecordViolation(v store.Violation) {
	if m := current(); m != nil {
		m.violationsTotal.WithLabelValues(v.Kind).Inc()
	}
}

// RecordToasts sets the number of visible toasts.
func RecordToasts(count int) {
	if m := current(); m != nil {
		m.toastsActive.Set(float64(count))
	}
}

// RecordWebSocketConnect records a live-feed client joining.
func RecordWebSocketConnect() {
	if m := current(); m != nil {
		m.wsClients.Inc()
	}
}

// RecordWebSocketDisconnect records a live-feed client leaving.
func RecordWebSocketDisconnect() {
	if m := current(); m != nil {
		m.wsClients.Dec()
	}
}

// RecordWebSocketError records a live-feed error.
func RecordWebSocketError(errorType string) {
	if m := current(); m != nil {
		m.wsErrors.WithLabelValues(errorType).Inc()
	}
}

func current() *metrics {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	return globalMetrics
}
