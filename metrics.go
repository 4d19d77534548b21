package adminauth

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts password checks that passed.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected credential submissions.
	MetricLoginFailure
	// MetricLoginLockedOut counts submissions rejected by lockout.
	MetricLoginLockedOut
	// MetricLoginRateLimited counts submissions rejected by the limiter.
	MetricLoginRateLimited
	// MetricCodeIssued counts one-time codes generated (login + resend).
	MetricCodeIssued
	// MetricCodeVerified counts accepted one-time codes.
	MetricCodeVerified
	// MetricCodeRejected counts rejected one-time codes.
	MetricCodeRejected
	// MetricSessionIssued counts issued token pairs.
	MetricSessionIssued
	// MetricSessionRefreshed counts refresh rotations.
	MetricSessionRefreshed
	// MetricTokenRevoked counts jti entries added to the registry.
	MetricTokenRevoked
	// MetricValidateStrict counts strict-mode validations.
	MetricValidateStrict
	// MetricValidateEdge counts edge-mode validations.
	MetricValidateEdge
	// MetricCSRFRejected counts failed anti-forgery checks.
	MetricCSRFRejected
	// MetricBackendDegraded counts dependency errors absorbed by policy.
	MetricBackendDegraded

	metricCount
)

// Metrics is a fixed set of lock-free counters.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

// Inc adds one to the counter. A nil receiver is a no-op so disabled
// metrics cost a single branch.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	LoginSuccess     uint64
	LoginFailure     uint64
	LoginLockedOut   uint64
	LoginRateLimited uint64
	CodeIssued       uint64
	CodeVerified     uint64
	CodeRejected     uint64
	SessionIssued    uint64
	SessionRefreshed uint64
	TokenRevoked     uint64
	ValidateStrict   uint64
	ValidateEdge     uint64
	CSRFRejected     uint64
	BackendDegraded  uint64
}

// Snapshot copies the counters. Zero-valued when metrics are disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		LoginSuccess:     m.counters[MetricLoginSuccess].Load(),
		LoginFailure:     m.counters[MetricLoginFailure].Load(),
		LoginLockedOut:   m.counters[MetricLoginLockedOut].Load(),
		LoginRateLimited: m.counters[MetricLoginRateLimited].Load(),
		CodeIssued:       m.counters[MetricCodeIssued].Load(),
		CodeVerified:     m.counters[MetricCodeVerified].Load(),
		CodeRejected:     m.counters[MetricCodeRejected].Load(),
		SessionIssued:    m.counters[MetricSessionIssued].Load(),
		SessionRefreshed: m.counters[MetricSessionRefreshed].Load(),
		TokenRevoked:     m.counters[MetricTokenRevoked].Load(),
		ValidateStrict:   m.counters[MetricValidateStrict].Load(),
		ValidateEdge:     m.counters[MetricValidateEdge].Load(),
		CSRFRejected:     m.counters[MetricCSRFRejected].Load(),
		BackendDegraded:  m.counters[MetricBackendDegraded].Load(),
	}
}
