package kvlookup

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// The metric package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordLookup is called after each store lookup.
	RecordLookup(outcome Outcome, duration time.Duration, err error)

	// RecordDocument is called after each document with the number of
	// annotations visited.
	RecordDocument(annotations int, duration time.Duration, err error)

	// RecordStoreOpen is called when a stage obtains its store. shared is
	// true when an already opened store was reused.
	RecordStoreOpen(shared bool, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLookup(Outcome, time.Duration, error) {}
func (NoopMetricsCollector) RecordDocument(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordStoreOpen(bool, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	LookupMatched    atomic.Int64
	LookupUnmatched  atomic.Int64
	LookupSkipped    atomic.Int64
	LookupErrors     atomic.Int64
	LookupTotalNanos atomic.Int64
	DocumentCount    atomic.Int64
	DocumentErrors   atomic.Int64
	Annotations      atomic.Int64
	StoreOpens       atomic.Int64
	StoreShares      atomic.Int64
	StoreOpenErrors  atomic.Int64
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(outcome Outcome, duration time.Duration, err error) {
	b.LookupTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LookupErrors.Add(1)
		return
	}
	switch outcome {
	case Matched:
		b.LookupMatched.Add(1)
	case Unmatched:
		b.LookupUnmatched.Add(1)
	default:
		b.LookupSkipped.Add(1)
	}
}

// RecordDocument implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDocument(annotations int, _ time.Duration, err error) {
	b.DocumentCount.Add(1)
	b.Annotations.Add(int64(annotations))
	if err != nil {
		b.DocumentErrors.Add(1)
	}
}

// RecordStoreOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStoreOpen(shared bool, _ time.Duration, err error) {
	switch {
	case err != nil:
		b.StoreOpenErrors.Add(1)
	case shared:
		b.StoreShares.Add(1)
	default:
		b.StoreOpens.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	lookups := b.LookupMatched.Load() + b.LookupUnmatched.Load() + b.LookupSkipped.Load() + b.LookupErrors.Load()
	var avg int64
	if lookups > 0 {
		avg = b.LookupTotalNanos.Load() / lookups
	}
	return BasicMetricsStats{
		LookupMatched:   b.LookupMatched.Load(),
		LookupUnmatched: b.LookupUnmatched.Load(),
		LookupSkipped:   b.LookupSkipped.Load(),
		LookupErrors:    b.LookupErrors.Load(),
		LookupAvgNanos:  avg,
		DocumentCount:   b.DocumentCount.Load(),
		DocumentErrors:  b.DocumentErrors.Load(),
		Annotations:     b.Annotations.Load(),
		StoreOpens:      b.StoreOpens.Load(),
		StoreShares:     b.StoreShares.Load(),
		StoreOpenErrors: b.StoreOpenErrors.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LookupMatched   int64
	LookupUnmatched int64
	LookupSkipped   int64
	LookupErrors    int64
	LookupAvgNanos  int64
	DocumentCount   int64
	DocumentErrors  int64
	Annotations     int64
	StoreOpens      int64
	StoreShares     int64
	StoreOpenErrors int64
}
