// Package metrics provides the Prometheus metrics surface shared by
// every fulcrum process: fleet gauges (servers, parties, reservations),
// bus message counters, data-layer query/persist histograms, and the
// registry status server's HTTP metrics.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector a fulcrum process registers.
type Metrics struct {
	// HTTP metrics (registry status server)
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Message bus
	BusMessagesTotal    *prometheus.CounterVec
	BusRequestDuration  *prometheus.HistogramVec

	// Server fleet
	ServersOnline      *prometheus.GaugeVec
	ServerHeartbeats   *prometheus.CounterVec
	ServerCrashesTotal *prometheus.CounterVec

	// Party coordinator
	PartiesActive      prometheus.Gauge
	PartyOperations    *prometheus.CounterVec

	// Reservation service
	ReservationsTotal *prometheus.CounterVec

	// Data layer
	DataQueriesTotal   *prometheus.CounterVec
	DataQueryDuration  *prometheus.HistogramVec
	DirtyFlushTotal    *prometheus.CounterVec
	DirtyFlushDuration *prometheus.HistogramVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registry.
func New(serviceName, environment string) *Metrics {
	return NewWithRegistry(serviceName, environment, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer
// (pass nil to skip registration, e.g. in tests that build multiple
// instances in one process).
func NewWithRegistry(serviceName, environment string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulcrum_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "fulcrum_http_requests_in_flight", Help: "Current number of HTTP requests being processed"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_errors_total", Help: "Total number of errors"},
			[]string{"service", "type", "operation"},
		),

		BusMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_bus_messages_total", Help: "Total number of message bus envelopes sent or received"},
			[]string{"service", "channel", "direction"},
		),
		BusRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulcrum_bus_request_duration_seconds",
				Help:    "Round-trip duration of request/response bus calls",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "channel"},
		),

		ServersOnline: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "fulcrum_servers_online", Help: "Current number of READY servers by family"},
			[]string{"family", "server_type"},
		),
		ServerHeartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_server_heartbeats_total", Help: "Total number of server heartbeats received"},
			[]string{"family"},
		),
		ServerCrashesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_server_crashes_total", Help: "Total number of servers detected as crashed"},
			[]string{"family"},
		),

		PartiesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "fulcrum_parties_active", Help: "Current number of active parties"},
		),
		PartyOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_party_operations_total", Help: "Total number of party coordinator operations by result code"},
			[]string{"operation", "code"},
		),

		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_reservations_total", Help: "Total number of match reservations by family and result"},
			[]string{"family", "result"},
		),

		DataQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_data_queries_total", Help: "Total number of cross-schema queries by executor strategy"},
			[]string{"strategy", "status"},
		),
		DataQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulcrum_data_query_duration_seconds",
				Help:    "Cross-schema query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"strategy"},
		),
		DirtyFlushTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fulcrum_dirty_flush_total", Help: "Total number of dirty-data flush operations by trigger"},
			[]string{"trigger", "status"},
		),
		DirtyFlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulcrum_dirty_flush_duration_seconds",
				Help:    "Dirty-data flush duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"trigger"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "fulcrum_service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "fulcrum_service_info", Help: "Service information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
			m.ErrorsTotal,
			m.BusMessagesTotal, m.BusRequestDuration,
			m.ServersOnline, m.ServerHeartbeats, m.ServerCrashesTotal,
			m.PartiesActive, m.PartyOperations,
			m.ReservationsTotal,
			m.DataQueriesTotal, m.DataQueryDuration, m.DirtyFlushTotal, m.DirtyFlushDuration,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", environment).Set(1)
	return m
}

func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

func (m *Metrics) RecordBusMessage(service, channel, direction string) {
	m.BusMessagesTotal.WithLabelValues(service, channel, direction).Inc()
}

func (m *Metrics) RecordBusRequest(service, channel string, duration time.Duration) {
	m.BusRequestDuration.WithLabelValues(service, channel).Observe(duration.Seconds())
}

func (m *Metrics) SetServersOnline(family, serverType string, count int) {
	m.ServersOnline.WithLabelValues(family, serverType).Set(float64(count))
}

func (m *Metrics) RecordHeartbeat(family string) {
	m.ServerHeartbeats.WithLabelValues(family).Inc()
}

func (m *Metrics) RecordServerCrash(family string) {
	m.ServerCrashesTotal.WithLabelValues(family).Inc()
}

func (m *Metrics) SetPartiesActive(count int) {
	m.PartiesActive.Set(float64(count))
}

func (m *Metrics) RecordPartyOperation(operation, code string) {
	m.PartyOperations.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) RecordReservation(family, result string) {
	m.ReservationsTotal.WithLabelValues(family, result).Inc()
}

func (m *Metrics) RecordDataQuery(strategy, status string, duration time.Duration) {
	m.DataQueriesTotal.WithLabelValues(strategy, status).Inc()
	m.DataQueryDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (m *Metrics) RecordDirtyFlush(trigger, status string, duration time.Duration) {
	m.DirtyFlushTotal.WithLabelValues(trigger, status).Inc()
	m.DirtyFlushDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

// Enabled returns whether Prometheus metrics should be exposed, driven
// by METRICS_ENABLED and defaulting to on (fulcrum processes are not
// split into production/non-production build profiles the way the
// source this pattern is grounded on was).
func Enabled(raw string) bool {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return true
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName, environment string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName, environment)
	}
	return globalMetrics
}

// Global returns the global metrics instance, creating an "unknown"
// service fallback instance if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown", "unknown")
	}
	return globalMetrics
}
