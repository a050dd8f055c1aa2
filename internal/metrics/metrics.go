package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram slot.
type MetricID uint16

const (
	CheckAuthorized MetricID = iota
	CheckForbidden
	CheckUnauthenticated
	CheckError
	CheckPending
	RehydrateSuccess
	RehydrateMissing
	RehydrateCorrupt
	CacheRead
	StoreWrite
	InvalidRole
	TokenRejected
	BackendUnavailable
	CheckLatency
	idCount
)

// Count is the number of defined metric slots.
const Count = int(idCount)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type histogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config selects which metrics are recorded.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Metrics holds lock-free counters and the check latency histogram.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [idCount]paddedCounter
	histograms    [idCount]histogram
}

// Snapshot is a copy of all counters and histograms at one instant.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
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

// Inc adds one to counter id. Disabled or nil metrics ignore the call.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= idCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only CheckLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= idCount {
		return
	}
	if id != CheckLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(idCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < idCount; id++ {
		if id == CheckLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[CheckLatency].buckets[i])
		}
		s.Histograms[CheckLatency] = buckets
	}

	return s
}

// Guard checks are in-process plus at most one cache read and one store
// write, so the buckets sit lower than a network call would need.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 100:
		return 0
	case us <= 250:
		return 1
	case us <= 500:
		return 2
	case us <= 1000:
		return 3
	case us <= 5000:
		return 4
	case us <= 25000:
		return 5
	case us <= 100000:
		return 6
	default:
		return 7
	}
}
