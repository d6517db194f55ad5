package arke

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    createCounter   prometheus.Counter
//	    appendHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordCreate(duration time.Duration, err error) {
//	    p.createCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordCreate is called after each entity creation.
	RecordCreate(duration time.Duration, err error)

	// RecordAppend is called after each version append. CAS losses
	// count as errors here; they are part of the protocol, not faults,
	// but callers watching contention want to see them.
	RecordAppend(duration time.Duration, err error)

	// RecordResolve is called after each tip resolution or manifest read.
	RecordResolve(duration time.Duration, err error)

	// RecordList is called after each enumeration page.
	// returned is the number of entries in the page.
	RecordList(returned int, duration time.Duration, err error)

	// RecordRebuild is called after each index snapshot rebuild.
	RecordRebuild(duration time.Duration, err error)

	// RecordSideEffect is called when a relationship side effect
	// reaches a terminal state. applied is false when it failed.
	RecordSideEffect(applied bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(time.Duration, error)    {}
func (NoopMetricsCollector) RecordAppend(time.Duration, error)    {}
func (NoopMetricsCollector) RecordResolve(time.Duration, error)   {}
func (NoopMetricsCollector) RecordList(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRebuild(time.Duration, error)   {}
func (NoopMetricsCollector) RecordSideEffect(bool)                {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount       atomic.Int64
	CreateErrors      atomic.Int64
	CreateTotalNanos  atomic.Int64
	AppendCount       atomic.Int64
	AppendErrors      atomic.Int64
	AppendTotalNanos  atomic.Int64
	ResolveCount      atomic.Int64
	ResolveErrors     atomic.Int64
	ListCount         atomic.Int64
	ListErrors        atomic.Int64
	ListEntries       atomic.Int64
	RebuildCount      atomic.Int64
	RebuildErrors     atomic.Int64
	SideEffectApplied atomic.Int64
	SideEffectFailed  atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(duration time.Duration, err error) {
	b.CreateCount.Add(1)
	b.CreateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CreateErrors.Add(1)
	}
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(duration time.Duration, err error) {
	b.AppendCount.Add(1)
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

// RecordResolve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordResolve(duration time.Duration, err error) {
	b.ResolveCount.Add(1)
	if err != nil {
		b.ResolveErrors.Add(1)
	}
}

// RecordList implements MetricsCollector.
func (b *BasicMetricsCollector) RecordList(returned int, duration time.Duration, err error) {
	b.ListCount.Add(1)
	b.ListEntries.Add(int64(returned))
	if err != nil {
		b.ListErrors.Add(1)
	}
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(duration time.Duration, err error) {
	b.RebuildCount.Add(1)
	if err != nil {
		b.RebuildErrors.Add(1)
	}
}

// RecordSideEffect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSideEffect(applied bool) {
	if applied {
		b.SideEffectApplied.Add(1)
	} else {
		b.SideEffectFailed.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:       b.CreateCount.Load(),
		CreateErrors:      b.CreateErrors.Load(),
		CreateAvgNanos:    avg(b.CreateTotalNanos.Load(), b.CreateCount.Load()),
		AppendCount:       b.AppendCount.Load(),
		AppendErrors:      b.AppendErrors.Load(),
		AppendAvgNanos:    avg(b.AppendTotalNanos.Load(), b.AppendCount.Load()),
		ResolveCount:      b.ResolveCount.Load(),
		ResolveErrors:     b.ResolveErrors.Load(),
		ListCount:         b.ListCount.Load(),
		ListErrors:        b.ListErrors.Load(),
		ListEntries:       b.ListEntries.Load(),
		RebuildCount:      b.RebuildCount.Load(),
		RebuildErrors:     b.RebuildErrors.Load(),
		SideEffectApplied: b.SideEffectApplied.Load(),
		SideEffectFailed:  b.SideEffectFailed.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount       int64
	CreateErrors      int64
	CreateAvgNanos    int64
	AppendCount       int64
	AppendErrors      int64
	AppendAvgNanos    int64
	ResolveCount      int64
	ResolveErrors     int64
	ListCount         int64
	ListErrors        int64
	ListEntries       int64
	RebuildCount      int64
	RebuildErrors     int64
	SideEffectApplied int64
	SideEffectFailed  int64
}
