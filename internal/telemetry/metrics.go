package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	PrinterErrors     *prometheus.CounterVec
	TokenGrants       *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	SweepOrders       *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
}

// NewMetrics creates metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printbridge_printer_requests_total",
				Help: "Total number of printer requests by operation, printer, and status",
			},
			[]string{"operation", "printer", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "printbridge_printer_request_duration_seconds",
				Help:    "Printer request duration in seconds by operation and printer",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "printer"},
		),
		PrinterErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printbridge_printer_errors_total",
				Help: "Total printer API errors by printer and error kind",
			},
			[]string{"printer", "kind"},
		),
		TokenGrants: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printbridge_token_grants_total",
				Help: "Total token grant attempts by grant type and status",
			},
			[]string{"grant_type", "status"},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printbridge_print_job_status_transitions_total",
				Help: "Total print job status changes by new status",
			},
			[]string{"status"},
		),
		SweepOrders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printbridge_sweep_orders_total",
				Help: "Orders visited by status sweeps by result",
			},
			[]string{"result"},
		),
		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "printbridge_sweep_duration_seconds",
				Help:    "Duration of status sweeps in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
	}
}

// RecordRequest records a printer request metric.
func (m *Metrics) RecordRequest(operation, printerName, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, printerName, status).Inc()
	m.RequestDuration.WithLabelValues(operation, printerName).Observe(duration)
}

// RecordError records a printer error metric.
func (m *Metrics) RecordError(printerName, kind string) {
	m.PrinterErrors.WithLabelValues(printerName, kind).Inc()
}

// RecordTokenGrant records a token grant attempt.
func (m *Metrics) RecordTokenGrant(grantType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TokenGrants.WithLabelValues(grantType, status).Inc()
}

// RecordStatusTransition records a persisted print job status change.
func (m *Metrics) RecordStatusTransition(status string) {
	m.StatusTransitions.WithLabelValues(status).Inc()
}

// RecordSweep records the outcome of one sweep.
func (m *Metrics) RecordSweep(checked, failed int, duration float64) {
	m.SweepOrders.WithLabelValues("checked").Add(float64(checked))
	m.SweepOrders.WithLabelValues("failed").Add(float64(failed))
	m.SweepDuration.Observe(duration)
}
