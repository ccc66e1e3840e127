// Package metrics provides Prometheus metrics for the label service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Store transactions
	TxTotal    *prometheus.CounterVec
	TxDuration *prometheus.HistogramVec

	// Domain
	GateRejectionsTotal  *prometheus.CounterVec
	FinalizeTotal        *prometheus.CounterVec
	VersionsAppended     *prometheus.CounterVec
	CopyGenerationsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Each test can pass its own prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelengine_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labelengine_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		TxTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelengine_store_transactions_total",
			Help: "Total number of store transactions",
		}, []string{"operation", "status"}),
		TxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labelengine_store_transaction_duration_seconds",
			Help:    "Duration of store transactions in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		GateRejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelengine_status_gate_rejections_total",
			Help: "Forward status events rejected for lack of a finalized review",
		}, []string{"status_code"}),
		FinalizeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelengine_review_finalize_total",
			Help: "Finalize attempts by outcome",
		}, []string{"outcome"}),
		VersionsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelengine_versions_appended_total",
			Help: "Versions appended by action",
		}, []string{"action"}),
		CopyGenerationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelengine_copy_generations_total",
			Help: "Copy generations by source",
		}, []string{"source"}),
	}
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordTx records a store transaction.
func (m *Metrics) RecordTx(operation, status string, duration time.Duration) {
	m.TxTotal.WithLabelValues(operation, status).Inc()
	m.TxDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// CounterValue reads the current value of c. Returns 0 when c cannot be read.
func CounterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}
