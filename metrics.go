package authgate

import "sync/atomic"

// MetricID identifies one counter in the gate's metric set.
type MetricID uint8

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected or failed logins.
	MetricLoginFailure
	// MetricRefreshSuccess counts silent refreshes that completed.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh calls that failed terminally.
	MetricRefreshFailure
	// MetricRefreshCoalesced counts callers that joined an in-flight
	// refresh instead of issuing their own.
	MetricRefreshCoalesced
	// MetricRetryExhausted counts requests that still saw a 401 after the
	// retry budget ran out.
	MetricRetryExhausted
	// MetricAuthFailureBroadcast counts emitted auth-failure events.
	MetricAuthFailureBroadcast
	// MetricLogoutBroadcast counts emitted logged-out events.
	MetricLogoutBroadcast
	// MetricSnapshotRestore counts sessions rehydrated from a snapshot.
	MetricSnapshotRestore
	// MetricFetchFailure counts profile fetches that cleared the session.
	MetricFetchFailure

	metricCount
)

var metricNames = [...]string{
	MetricLoginSuccess:         "login_success",
	MetricLoginFailure:         "login_failure",
	MetricRefreshSuccess:       "refresh_success",
	MetricRefreshFailure:       "refresh_failure",
	MetricRefreshCoalesced:     "refresh_coalesced",
	MetricRetryExhausted:       "retry_exhausted",
	MetricAuthFailureBroadcast: "auth_failure_broadcast",
	MetricLogoutBroadcast:      "logout_broadcast",
	MetricSnapshotRestore:      "snapshot_restore",
	MetricFetchFailure:         "fetch_failure",
}

// Name returns the stable snake_case name of the metric, suitable as an
// exposition label.
func (id MetricID) Name() string {
	if int(id) < len(metricNames) {
		return metricNames[id]
	}
	return "unknown"
}

// Metrics is a fixed set of atomic counters. The zero value is unusable;
// construct through [NewMetrics]. All methods are safe for concurrent use.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// NewMetrics returns an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments one counter. Nil receivers are tolerated so metric calls
// never need guarding at call sites.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters keyed by MetricID.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the current counter values. The returned map is owned by
// the caller.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
