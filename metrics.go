package blockfs

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordRead is called after each read on the data path.
	// n is the number of bytes transferred, err is nil if successful.
	RecordRead(n int, duration time.Duration, err error)

	// RecordWrite is called after each write on the data path.
	RecordWrite(n int, duration time.Duration, err error)

	// RecordAlloc is called after each block allocation attempt.
	RecordAlloc(err error)

	// RecordSnapshot is called after each snapshot write or load.
	// bytes is the encoded snapshot size.
	RecordSnapshot(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRead(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordWrite(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordAlloc(error)                          {}
func (NoopMetricsCollector) RecordSnapshot(int64, time.Duration, error) {}

// NewBasicMetricsCollector creates a new BasicMetricsCollector.
func NewBasicMetricsCollector() *BasicMetricsCollector {
	return &BasicMetricsCollector{}
}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ReadCount       atomic.Int64
	ReadBytes       atomic.Int64
	ReadErrors      atomic.Int64
	ReadTotalNanos  atomic.Int64
	WriteCount      atomic.Int64
	WriteBytes      atomic.Int64
	WriteErrors     atomic.Int64
	WriteTotalNanos atomic.Int64
	AllocCount      atomic.Int64
	AllocErrors     atomic.Int64
	SnapshotCount   atomic.Int64
	SnapshotBytes   atomic.Int64
	SnapshotErrors  atomic.Int64
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(n int, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadBytes.Add(int64(n))
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(n int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteBytes.Add(int64(n))
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(err error) {
	b.AllocCount.Add(1)
	if err != nil {
		b.AllocErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int64, duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	b.SnapshotBytes.Add(bytes)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// Stats is a point-in-time view of collected metrics.
type Stats struct {
	ReadCount     int64
	ReadBytes     int64
	ReadAvgNanos  int64
	WriteCount    int64
	WriteBytes    int64
	WriteAvgNanos int64
	AllocCount    int64
	AllocErrors   int64
	Snapshots     int64
	SnapshotBytes int64
}

// GetStats returns a consistent snapshot of the collected counters.
func (b *BasicMetricsCollector) GetStats() Stats {
	s := Stats{
		ReadCount:     b.ReadCount.Load(),
		ReadBytes:     b.ReadBytes.Load(),
		WriteCount:    b.WriteCount.Load(),
		WriteBytes:    b.WriteBytes.Load(),
		AllocCount:    b.AllocCount.Load(),
		AllocErrors:   b.AllocErrors.Load(),
		Snapshots:     b.SnapshotCount.Load(),
		SnapshotBytes: b.SnapshotBytes.Load(),
	}
	if s.ReadCount > 0 {
		s.ReadAvgNanos = b.ReadTotalNanos.Load() / s.ReadCount
	}
	if s.WriteCount > 0 {
		s.WriteAvgNanos = b.WriteTotalNanos.Load() / s.WriteCount
	}
	return s
}
