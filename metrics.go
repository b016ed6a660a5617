package sbd

import (
	"sync/atomic"
	"time"

	"github.com/behrlich/go-sbd/internal/interfaces"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// A memory copy is fast, so buckets start at 100ns.
var LatencyBuckets = []uint64{
	100,           // 100ns
	1_000,         // 1us
	10_000,        // 10us
	100_000,       // 100us
	1_000_000,     // 1ms
	10_000_000,    // 10ms
	100_000_000,   // 100ms
	1_000_000_000, // 1s
}

const numLatencyBuckets = 8

// Metrics tracks transfer and drain statistics for a device
type Metrics struct {
	// Chunk counters
	ReadOps  atomic.Uint64
	WriteOps atomic.Uint64

	// Byte counters
	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	// Error counters
	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64

	// Requests rejected by kind
	Unsupported atomic.Uint64

	// Chunks outside the device, split by what happened to them
	OutOfRangeDropped atomic.Uint64
	OutOfRangeFailed  atomic.Uint64

	// Drain statistics
	Drains           atomic.Uint64
	DrainedRequests  atomic.Uint64
	MaxDrainRequests atomic.Uint32

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Each bucket[i] counts operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Device lifecycle
	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a read chunk
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a write chunk
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordUnsupported records a request rejected by kind
func (m *Metrics) RecordUnsupported() {
	m.Unsupported.Add(1)
}

// RecordOutOfRange records a chunk that did not fit in the device
func (m *Metrics) RecordOutOfRange(dropped bool) {
	if dropped {
		m.OutOfRangeDropped.Add(1)
	} else {
		m.OutOfRangeFailed.Add(1)
	}
}

// RecordDrain records one drain invocation
func (m *Metrics) RecordDrain(requests uint32) {
	m.Drains.Add(1)
	m.DrainedRequests.Add(uint64(requests))

	for {
		current := m.MaxDrainRequests.Load()
		if requests <= current {
			break
		}
		if m.MaxDrainRequests.CompareAndSwap(current, requests) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the device as stopped
func (m *Metrics) Stop() {
	m.StopTime.CompareAndSwap(0, time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	ReadOps     uint64 `json:"read_ops"`
	WriteOps    uint64 `json:"write_ops"`
	ReadBytes   uint64 `json:"read_bytes"`
	WriteBytes  uint64 `json:"write_bytes"`
	ReadErrors  uint64 `json:"read_errors"`
	WriteErrors uint64 `json:"write_errors"`

	Unsupported       uint64 `json:"unsupported"`
	OutOfRangeDropped uint64 `json:"out_of_range_dropped"`
	OutOfRangeFailed  uint64 `json:"out_of_range_failed"`

	Drains           uint64  `json:"drains"`
	DrainedRequests  uint64  `json:"drained_requests"`
	AvgDrainRequests float64 `json:"avg_drain_requests"`
	MaxDrainRequests uint32  `json:"max_drain_requests"`

	AvgLatencyNs uint64 `json:"avg_latency_ns"`
	UptimeNs     uint64 `json:"uptime_ns"`

	// Latency percentiles (in nanoseconds)
	LatencyP50Ns  uint64 `json:"latency_p50_ns"`
	LatencyP99Ns  uint64 `json:"latency_p99_ns"`
	LatencyP999Ns uint64 `json:"latency_p999_ns"`

	LatencyHistogram [numLatencyBuckets]uint64 `json:"latency_histogram"`

	ReadBandwidth  float64 `json:"read_bandwidth"` // bytes per second
	WriteBandwidth float64 `json:"write_bandwidth"`
	TotalOps       uint64  `json:"total_ops"`
	TotalBytes     uint64  `json:"total_bytes"`
	ErrorRate      float64 `json:"error_rate"` // percent of failed chunks
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:           m.ReadOps.Load(),
		WriteOps:          m.WriteOps.Load(),
		ReadBytes:         m.ReadBytes.Load(),
		WriteBytes:        m.WriteBytes.Load(),
		ReadErrors:        m.ReadErrors.Load(),
		WriteErrors:       m.WriteErrors.Load(),
		Unsupported:       m.Unsupported.Load(),
		OutOfRangeDropped: m.OutOfRangeDropped.Load(),
		OutOfRangeFailed:  m.OutOfRangeFailed.Load(),
		Drains:            m.Drains.Load(),
		DrainedRequests:   m.DrainedRequests.Load(),
		MaxDrainRequests:  m.MaxDrainRequests.Load(),
	}

	snap.TotalOps = snap.ReadOps + snap.WriteOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes

	if snap.Drains > 0 {
		snap.AvgDrainRequests = float64(snap.DrainedRequests) / float64(snap.Drains)
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	startTime := m.StartTime.Load()
	if stopTime := m.StopTime.Load(); stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		seconds := float64(snap.UptimeNs) / 1e9
		snap.ReadBandwidth = float64(snap.ReadBytes) / seconds
		snap.WriteBandwidth = float64(snap.WriteBytes) / seconds
	}

	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(snap.ReadErrors+snap.WriteErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	// Slower than every bucket
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all counters (useful for testing)
func (m *Metrics) Reset() {
	m.ReadOps.Store(0)
	m.WriteOps.Store(0)
	m.ReadBytes.Store(0)
	m.WriteBytes.Store(0)
	m.ReadErrors.Store(0)
	m.WriteErrors.Store(0)
	m.Unsupported.Store(0)
	m.OutOfRangeDropped.Store(0)
	m.OutOfRangeFailed.Store(0)
	m.Drains.Store(0)
	m.DrainedRequests.Store(0)
	m.MaxDrainRequests.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer receives drain loop events
type Observer = interfaces.Observer

// NoOpObserver discards every event
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveUnsupported()               {}
func (NoOpObserver) ObserveOutOfRange(bool, bool)      {}
func (NoOpObserver) ObserveDrain(uint32)               {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveUnsupported() {
	o.metrics.RecordUnsupported()
}

func (o *MetricsObserver) ObserveOutOfRange(_ bool, dropped bool) {
	o.metrics.RecordOutOfRange(dropped)
}

func (o *MetricsObserver) ObserveDrain(requests uint32) {
	o.metrics.RecordDrain(requests)
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)
