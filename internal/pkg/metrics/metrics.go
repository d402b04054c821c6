// Package metrics defines all custom Prometheus metrics for the auth gateway.
// It is the single source of truth for metric names, labels, and help strings.
//
// Metrics register with the default Prometheus registry on import; /metrics
// exposes them next to the HTTP metrics collected by echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authgw"

// ── Authentication metrics ───────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", "inactive", "locked" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// RefreshesTotal counts refresh-token rotations.
// Label:
//   - result: "success", "invalid" or "error"
var RefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of refresh attempts, by result.",
	},
	[]string{"result"},
)

// AuthFailuresTotal counts requests rejected by the authentication middleware.
// Label:
//   - reason: "missing", "invalid", "expired", "revoked", "user", "session", "binding"
var AuthFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total number of requests rejected during authentication.",
	},
	[]string{"reason"},
)

// CSRFRejectionsTotal counts CSRF check failures.
// Label:
//   - reason: "missing", "invalid", "expired", "used" or "mismatch"
var CSRFRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "csrf_rejections_total",
		Help:      "Total number of mutating requests rejected by the CSRF check.",
	},
	[]string{"reason"},
)

// ── Security log metrics ─────────────────────────────────────────────────────

// SecurityEventsTotal counts security log entries accepted by the dispatcher.
// Labels:
//   - activity: the recorded activity (e.g. "login_failed")
//   - severity: "low", "medium", "high" or "critical"
var SecurityEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_events_total",
		Help:      "Total number of security events recorded.",
	},
	[]string{"activity", "severity"},
)

// SecurityEventsDroppedTotal counts entries dropped because a worker queue was full.
var SecurityEventsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_events_dropped_total",
		Help:      "Total number of security events dropped due to a full dispatcher queue.",
	},
)

// SecurityEventsQueueDepth tracks the number of entries waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var SecurityEventsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "security_events_queue_depth",
		Help:      "Current number of security events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// SecurityLogWriteDuration measures how long a sink write takes.
// Label:
//   - result: "ok" or "error"
var SecurityLogWriteDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "security_log_write_duration_seconds",
		Help:      "Duration of security log writes from dequeue to persistence.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

// ── Session metrics ──────────────────────────────────────────────────────────

// SessionsCreatedTotal counts newly created sessions.
// Label:
//   - remember_me: "true" or "false"
var SessionsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total number of sessions created.",
	},
	[]string{"remember_me"},
)

// SweptRecordsTotal counts rows removed by the periodic sweeper.
// Label:
//   - kind: "session" or "csrf_token"
var SweptRecordsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_records_total",
		Help:      "Total number of expired records removed by the sweeper.",
	},
	[]string{"kind"},
)
