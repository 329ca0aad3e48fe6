package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nectar"

// EngineMetrics tracks mint, burn, issuance, and withdrawal activity in the
// accounting engines.
type EngineMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics

	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics

	supplyMetricsOnce sync.Once
	supplyRegistry    *SupplyMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by engine, operation, and outcome.",
			}, []string{"engine", "op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"engine", "op"}),
		}
		prometheus.MustRegister(engineRegistry.operations, engineRegistry.latency)
	})
	return engineRegistry
}

// Observe records one engine operation with its outcome and duration.
func (m *EngineMetrics) Observe(engine, op string, err error, started time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(engine, op, outcome).Inc()
	m.latency.WithLabelValues(engine, op).Observe(time.Since(started).Seconds())
}

// GatewayMetrics tracks the HTTP surface: request counts, latency, throttles,
// and authentication failures.
type GatewayMetrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	throttles    *prometheus.CounterVec
	authFailures *prometheus.CounterVec
}

// Gateway returns the lazily-initialised gateway metrics registry.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "throttled_total",
				Help:      "Requests rejected by the per-client rate limiter.",
			}, []string{"scope"}),
			authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "auth_failures_total",
				Help:      "Authentication rejections segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
			gatewayRegistry.authFailures,
		)
	})
	return gatewayRegistry
}

// ObserveRequest records one HTTP request.
func (m *GatewayMetrics) ObserveRequest(route, method string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(time.Since(started).Seconds())
}

// RecordThrottle increments the throttle counter for the given scope.
func (m *GatewayMetrics) RecordThrottle(scope string) {
	if m == nil {
		return
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "unknown"
	}
	m.throttles.WithLabelValues(scope).Inc()
}

// RecordAuthFailure increments the auth failure counter for the given reason.
func (m *GatewayMetrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// SupplyMetrics exports the ledger and vault position as gauges.
type SupplyMetrics struct {
	circulating prometheus.Gauge
	dailyMinted prometheus.Gauge
	collateral  prometheus.Gauge
	reserved    prometheus.Gauge
}

// Supply returns the lazily-initialised supply gauge registry.
func Supply() *SupplyMetrics {
	supplyMetricsOnce.Do(func() {
		supplyRegistry = &SupplyMetrics{
			circulating: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "supply",
				Name:      "circulating_points",
				Help:      "Current circulating point supply.",
			}),
			dailyMinted: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "supply",
				Name:      "daily_minted_points",
				Help:      "Points minted in the current UTC day window.",
			}),
			collateral: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "vaults",
				Name:      "collateral_units",
				Help:      "Total collateral units custodied across all vaults.",
			}),
			reserved: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "vaults",
				Name:      "reserved_units",
				Help:      "Collateral units reserved to back outstanding points.",
			}),
		}
		prometheus.MustRegister(
			supplyRegistry.circulating,
			supplyRegistry.dailyMinted,
			supplyRegistry.collateral,
			supplyRegistry.reserved,
		)
	})
	return supplyRegistry
}

// Record updates the supply gauges from the latest ledger snapshot.
func (m *SupplyMetrics) Record(circulating, dailyMinted uint64) {
	if m == nil {
		return
	}
	m.circulating.Set(float64(circulating))
	m.dailyMinted.Set(float64(dailyMinted))
}

// RecordVaults updates the aggregate collateral gauges.
func (m *SupplyMetrics) RecordVaults(collateral, reserved uint64) {
	if m == nil {
		return
	}
	m.collateral.Set(float64(collateral))
	m.reserved.Set(float64(reserved))
}
