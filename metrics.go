package blogAuth

import (
	"slices"
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter. Names for exporters live in
// metrics/export/internaldefs.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricAccountDisabled
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshSuperseded
	MetricRateLimitHit
	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricTokenBlacklisted
	MetricBlacklistRejected
	MetricTokenExpired
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordChangeRejected
	MetricPasswordHashUpgraded
	MetricStoreUnavailable
	MetricValidateLatency
	metricIDCount
)

// LatencyBuckets are the inclusive upper bounds of the validate latency
// histogram. Observations above the last bound land in an overflow bucket, so
// snapshots carry len(LatencyBuckets)+1 counts.
var LatencyBuckets = []time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// counter is padded to a cache line so hot counters do not share one.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

type latencyHistogram struct {
	buckets []atomic.Uint64
	sum     atomic.Int64 // nanoseconds
}

func (h *latencyHistogram) observe(d time.Duration) {
	i, _ := slices.BinarySearch(LatencyBuckets, d)
	h.buckets[i].Add(1)
	h.sum.Add(int64(d))
}

// Metrics is a lock-free set of counters and the validate latency histogram.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]counter
	latency  *latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms hold
// per-bucket (not cumulative) counts; HistogramSums the total observed time.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
}

// NewMetrics returns a collector; a disabled collector ignores every call.
func NewMetrics(cfg MetricsConfig) *Metrics {
	m := &Metrics{enabled: cfg.Enabled}
	if cfg.Enabled && cfg.EnableLatencyHistograms {
		m.latency = &latencyHistogram{buckets: make([]atomic.Uint64, len(LatencyBuckets)+1)}
	}
	return m
}

// Enabled reports whether counters are collected.
func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

// LatencyEnabled reports whether the validate latency histogram is collected.
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency != nil }

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records a latency sample. Only MetricValidateLatency has a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricValidateLatency || !m.LatencyEnabled() {
		return
	}
	m.latency.observe(d)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter and, when enabled, the latency buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := emptySnapshot()
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.counters[id].Load()
	}

	if m.latency != nil {
		buckets := make([]uint64, len(m.latency.buckets))
		for i := range m.latency.buckets {
			buckets[i] = m.latency.buckets[i].Load()
		}
		s.Histograms[MetricValidateLatency] = buckets
		s.HistogramSums[MetricValidateLatency] = time.Duration(m.latency.sum.Load())
	}
	return s
}
