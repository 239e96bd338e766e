package authflow

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram in [Metrics].
type MetricID uint16

const (
	// MetricSignInSuccess counts sign-ins that established a session.
	MetricSignInSuccess MetricID = iota
	// MetricSignInFailure counts sign-ins rejected by the provider or pre-flight checks.
	MetricSignInFailure
	// MetricSignUpSuccess counts registrations that established a session.
	MetricSignUpSuccess
	// MetricSignUpFailure counts rejected registrations.
	MetricSignUpFailure
	// MetricOTPRequested counts one-time codes the provider accepted to send.
	MetricOTPRequested
	// MetricOTPRequestFailure counts failed code requests.
	MetricOTPRequestFailure
	// MetricRateLimited counts actions denied by the limiter.
	MetricRateLimited
	// MetricValidationRejected counts actions rejected for input shape.
	MetricValidationRejected
	// MetricOffline counts actions rejected because the network was down.
	MetricOffline
	// MetricProviderTimeout counts provider calls cut off by the timeout.
	MetricProviderTimeout
	// MetricCancelled counts actions abandoned by the caller mid-flight.
	MetricCancelled
	// MetricDuplicateCoalesced counts submits that joined an identical in-flight action.
	MetricDuplicateCoalesced
	// MetricBusyRejected counts submits refused because another action was in flight.
	MetricBusyRejected
	// MetricSessionCreated counts session records written.
	MetricSessionCreated
	// MetricSignOut counts sign-outs.
	MetricSignOut
	// MetricSignOutProviderFailure counts swallowed provider sign-out failures.
	MetricSignOutProviderFailure
	// MetricProviderLatency is the provider call latency histogram.
	MetricProviderLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the provider latency histogram. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics gated by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in histogram id. Only MetricProviderLatency is a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricProviderLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, plus the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricProviderLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricProviderLatency].buckets[i])
		}
		s.Histograms[MetricProviderLatency] = buckets
	}

	return s
}

// Provider calls are network round trips, so the buckets are coarser than a
// request-path histogram would use.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 5000:
		return 6
	default:
		return 7
	}
}
