package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API client metrics
var (
	// APIRequests tracks every exchange with the auth API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_api_requests_total",
			Help: "Total auth API requests by method, route, and status code",
		},
		[]string{"method", "route", "status"},
	)

	// APIDuration tracks auth API latency
	APIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gatekeeper_api_request_duration_ms",
			Help:                            "Auth API request duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "route"},
	)

	// APIErrors tracks failed exchanges by normalized error kind
	APIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_api_errors_total",
			Help: "Total failed auth API exchanges by route and error kind",
		},
		[]string{"route", "kind"},
	)

	// LogoutSignals counts forced logouts raised by 401 responses
	LogoutSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_logout_signals_total",
			Help: "Total logout-required signals emitted after authentication failures",
		},
	)
)

// Token persistence metrics
var (
	// StorageOperations tracks reads and writes against the persistence media
	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_storage_operations_total",
			Help: "Total storage operations by backend, operation, and status",
		},
		[]string{"backend", "operation", "status"},
	)
)

// Session metrics
var (
	// SessionTransitions counts authenticated/unauthenticated transitions
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_session_transitions_total",
			Help: "Total session state transitions by target state and cause",
		},
		[]string{"state", "cause"},
	)

	// NotificationsActive tracks notifications currently displayed
	NotificationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_notifications_active",
			Help: "Number of notifications currently in the notification list",
		},
	)
)
