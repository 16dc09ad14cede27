package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/kvlookup"
)

var _ kvlookup.MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector records look-up metrics as Prometheus series.
type PrometheusCollector struct {
	Lookups          *prometheus.CounterVec
	LookupDuration   prometheus.Histogram
	Documents        *prometheus.CounterVec
	Annotations      prometheus.Counter
	DocumentDuration prometheus.Histogram
	StoreOpens       *prometheus.CounterVec
	StoreOpenSeconds prometheus.Histogram
}

// NewPrometheusCollector creates the collector and registers its series with
// reg. namespace defaults to "kvlookup".
func NewPrometheusCollector(reg prometheus.Registerer, namespace string) (*PrometheusCollector, error) {
	if namespace == "" {
		namespace = "kvlookup"
	}
	c := &PrometheusCollector{
		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lookup",
				Name:      "total",
				Help:      "Look-ups by outcome (matched, unmatched, skipped, error)",
			},
			[]string{"outcome"},
		),
		LookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "duration_seconds",
			Help:      "Look-up duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
		Documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "processed_total",
				Help:      "Documents processed by status",
			},
			[]string{"status"},
		),
		Annotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "annotations_total",
			Help:      "Annotations visited",
		}),
		DocumentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "duration_seconds",
			Help:      "Document processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		StoreOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "acquired_total",
				Help:      "Store acquisitions by result (opened, shared, error)",
			},
			[]string{"result"},
		),
		StoreOpenSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "acquire_duration_seconds",
			Help:      "Time to obtain the store in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, col := range []prometheus.Collector{
		c.Lookups, c.LookupDuration, c.Documents, c.Annotations,
		c.DocumentDuration, c.StoreOpens, c.StoreOpenSeconds,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordLookup implements kvlookup.MetricsCollector.
func (c *PrometheusCollector) RecordLookup(outcome kvlookup.Outcome, d time.Duration, err error) {
	label := outcome.String()
	if err != nil {
		label = "error"
	}
	c.Lookups.WithLabelValues(label).Inc()
	c.LookupDuration.Observe(d.Seconds())
}

// RecordDocument implements kvlookup.MetricsCollector.
func (c *PrometheusCollector) RecordDocument(annotations int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Documents.WithLabelValues(status).Inc()
	c.Annotations.Add(float64(annotations))
	c.DocumentDuration.Observe(d.Seconds())
}

// RecordStoreOpen implements kvlookup.MetricsCollector.
func (c *PrometheusCollector) RecordStoreOpen(shared bool, d time.Duration, err error) {
	result := "opened"
	switch {
	case err != nil:
		result = "error"
	case shared:
		result = "shared"
	}
	c.StoreOpens.WithLabelValues(result).Inc()
	c.StoreOpenSeconds.Observe(d.Seconds())
}
