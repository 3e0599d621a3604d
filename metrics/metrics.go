// Package metrics provides Prometheus metrics for session and admin API operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes recorded by RecordAdminUserFetch.
const (
	FetchSuccess    = "success"
	FetchDebounced  = "debounced"
	FetchClockSkew  = "clock_skew_retry"
	FetchNotFound   = "not_found"
	FetchRetryLater = "not_found_retry"
	FetchFailure    = "failure"
	FetchStale      = "stale"
)

// Metrics holds all Prometheus metrics for the admin session.
type Metrics struct {
	enabled bool

	// Admin user fetch metrics
	adminUserFetchesTotal  *prometheus.CounterVec
	adminUserFetchDuration prometheus.Histogram

	// Permission check metrics
	permissionChecksTotal *prometheus.CounterVec

	// Session lifecycle metrics
	logoutsTotal *prometheus.CounterVec
	sessionState *prometheus.GaugeVec

	// Admin API metrics
	apiRequestsTotal   *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
}

// Option configures Metrics.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the collectors with reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool, opts ...Option) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	factory := promauto.With(o.registerer)

	m.adminUserFetchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_iam_admin_user_fetches_total",
		Help: "Admin user fetch attempts by outcome",
	}, []string{"result"})

	m.adminUserFetchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "portfolio_iam_admin_user_fetch_duration_seconds",
		Help:    "Admin user fetch duration in seconds, retries included",
		Buckets: prometheus.DefBuckets,
	})

	m.permissionChecksTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_iam_permission_checks_total",
		Help: "Total permission checks",
	}, []string{"result"})

	m.logoutsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_iam_logouts_total",
		Help: "Logouts by reason and sign-out result",
	}, []string{"reason", "result"})

	m.sessionState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_iam_session_state",
		Help: "Current session status (1 for the active status)",
	}, []string{"status"})

	m.apiRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_iam_api_requests_total",
		Help: "Admin API requests by collection, operation and result",
	}, []string{"collection", "operation", "result"})

	m.apiRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_iam_api_request_duration_seconds",
		Help:    "Admin API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection", "operation"})

	return m
}

// Enabled reports whether metrics are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// RecordAdminUserFetch records one admin user fetch outcome.
func (m *Metrics) RecordAdminUserFetch(result string, durationSeconds float64) {
	if !m.Enabled() {
		return
	}
	m.adminUserFetchesTotal.WithLabelValues(result).Inc()
	if durationSeconds > 0 {
		m.adminUserFetchDuration.Observe(durationSeconds)
	}
}

// RecordPermissionCheck records a permission check result.
func (m *Metrics) RecordPermissionCheck(granted bool) {
	if !m.Enabled() {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.permissionChecksTotal.WithLabelValues(result).Inc()
}

// RecordLogout records a logout. reason is "user" or "inactivity".
func (m *Metrics) RecordLogout(reason string, signOutErr error) {
	if !m.Enabled() {
		return
	}
	result := "success"
	if signOutErr != nil {
		result = "sign_out_failed"
	}
	m.logoutsTotal.WithLabelValues(reason, result).Inc()
}

// SetSessionState marks status as the active one among all statuses.
func (m *Metrics) SetSessionState(status string, all []string) {
	if !m.Enabled() {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1.0
		}
		m.sessionState.WithLabelValues(s).Set(v)
	}
}

// RecordAPIRequest records one admin API round trip.
func (m *Metrics) RecordAPIRequest(collection, operation string, err error, durationSeconds float64) {
	if !m.Enabled() {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.apiRequestsTotal.WithLabelValues(collection, operation, result).Inc()
	m.apiRequestDuration.WithLabelValues(collection, operation).Observe(durationSeconds)
}
