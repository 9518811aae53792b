// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// Registrations counts registration commit attempts by outcome
	// (ok, replayed, already_registered, event_full, payment_reused, error).
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Registration commit attempts by result.",
	}, []string{"result"})

	PaymentIntegrityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_integrity_failures_total",
		Help: "Rejected payment proofs by reason.",
	}, []string{"reason"})

	AttendanceScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_scans_total",
		Help: "Gate scans by result (verified, already_verified, invalid).",
	}, []string{"result"})

	CertificatesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Certificates issued.",
	})

	EmailJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "email_jobs_total",
		Help: "Email jobs processed by the worker by result (sent, retried, dead).",
	}, []string{"result"})
)
