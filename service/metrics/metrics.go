package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is constructed once and passed to every component that records metrics.
type Metrics struct {
	// NEAR RPC Metrics
	nearRPCCallsTotal   *prometheus.CounterVec
	nearRPCCallDuration *prometheus.HistogramVec
	nearRPCErrorsTotal  *prometheus.CounterVec

	// Donation contract Metrics
	donationOperationsTotal   *prometheus.CounterVec
	donationOperationDuration *prometheus.HistogramVec
	donationsListed           *prometheus.HistogramVec

	// Workflow Metrics
	confirmWorkflowDuration        *prometheus.HistogramVec
	confirmWorkflowExecutionsTotal *prometheus.CounterVec
	confirmActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// NEAR RPC Metrics
		nearRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "near_rpc_calls_total",
				Help: "Total number of NEAR JSON-RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		nearRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "near_rpc_call_duration_seconds",
				Help:    "Duration of NEAR JSON-RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		nearRPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "near_rpc_errors_total",
				Help: "Total number of NEAR JSON-RPC errors by error cause",
			},
			[]string{"method", "cause"},
		),

		// Donation contract Metrics
		donationOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donation_operations_total",
				Help: "Total number of donation contract operations by outcome",
			},
			[]string{"operation", "status"},
		),
		donationOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "donation_operation_duration_seconds",
				Help:    "Duration of donation contract operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"operation"},
		),
		donationsListed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "donations_listed_per_call",
				Help:    "Number of donation records returned per latest donations query",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"contract"},
		),

		// Workflow Metrics
		confirmWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confirm_workflow_duration_seconds",
				Help:    "Duration of donation confirmation workflows in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		confirmWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirm_workflow_executions_total",
				Help: "Total number of donation confirmation workflow executions",
			},
			[]string{"status"},
		),
		confirmActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confirm_activity_duration_seconds",
				Help:    "Duration of donation confirmation activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "status"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// NEAR RPC metric helpers

// RecordRPCCall records a NEAR JSON-RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.nearRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.nearRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCError records a structured RPC error by its cause name.
func (m *Metrics) RecordRPCError(method, cause string) {
	m.nearRPCErrorsTotal.WithLabelValues(method, cause).Inc()
}

// Donation metric helpers

// RecordDonationOperation records a donation contract operation and its outcome.
func (m *Metrics) RecordDonationOperation(operation string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.donationOperationsTotal.WithLabelValues(operation, status).Inc()
	m.donationOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordDonationsListed records how many records a latest donations query returned.
func (m *Metrics) RecordDonationsListed(contract string, count int) {
	m.donationsListed.WithLabelValues(contract).Observe(float64(count))
}

// Workflow metric helpers

// RecordWorkflowDuration records confirmation workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.confirmWorkflowDuration.WithLabelValues(status).Observe(duration)
	m.confirmWorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.confirmActivityDuration.WithLabelValues(activity, status).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
