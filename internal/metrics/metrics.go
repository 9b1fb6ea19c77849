// Package metrics holds the Prometheus collectors shared by the client and
// the reference service. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	clientCalls     *prometheus.CounterVec
	clientDuration  *prometheus.HistogramVec
	availability    *prometheus.CounterVec
	attendanceMarks *prometheus.CounterVec
	serverRequests  *prometheus.CounterVec
	serverDuration  *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		clientCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_client_calls_total",
				Help: "Remote calls issued by the client, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		clientDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventdesk_client_call_duration_seconds",
				Help:    "Latency of remote calls issued by the client",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"operation"},
		),
		availability: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_availability_checks_total",
				Help: "Availability checks resolved while loading pending events",
			},
			[]string{"result"},
		),
		attendanceMarks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventdesk_attendance_marks_total",
				Help: "Attendance marks by path and result",
			},
			[]string{"path", "result"},
		),
		serverRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventd_http_requests_total",
				Help: "Requests served by the reference service",
			},
			[]string{"method", "route", "status"},
		),
		serverDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventd_http_request_duration_seconds",
				Help:    "Latency of requests served by the reference service",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveCall records one client call. outcome is "ok", "status_<code>" or "error".
func (m *Metrics) ObserveCall(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.clientCalls.WithLabelValues(op, outcome).Inc()
	m.clientDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveAvailability records a resolved check: "available", "unavailable" or "failed".
func (m *Metrics) ObserveAvailability(result string) {
	if m == nil {
		return
	}
	m.availability.WithLabelValues(result).Inc()
}

// ObserveAttendance records a mark attempt: result is "marked", "suppressed" or "failed".
func (m *Metrics) ObserveAttendance(path, result string) {
	if m == nil {
		return
	}
	m.attendanceMarks.WithLabelValues(path, result).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.serverRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.serverDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
