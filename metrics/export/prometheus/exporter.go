package prometheus

import (
	"net/http"

	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() portalguard.MetricsSnapshot
	AuditDropped() uint64
}

// suppressionSource is implemented by sources that collapse repeated audit
// events, such as *portalguard.Guard.
type suppressionSource interface {
	AuditSuppressed() uint64
}

// Collector exposes guard counters to a Prometheus registry. Values are read
// from the guard's snapshot on every scrape.
type Collector struct {
	source     metricsSource
	counters   []counterDesc
	histograms []histogramDesc
	dropped    *prometheus.Desc
	suppressed *prometheus.Desc
}

type counterDesc struct {
	id   portalguard.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   portalguard.MetricID
	desc *prometheus.Desc
}

// NewCollector builds a collector reading from source. A *portalguard.Guard
// is a valid source.
func NewCollector(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		dropped:    prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	if _, ok := source.(suppressionSource); ok {
		c.suppressed = prometheus.NewDesc(internaldefs.AuditSuppressedName, internaldefs.AuditSuppressedHelp, nil, nil)
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

// Register adds a collector for source to reg.
func Register(reg prometheus.Registerer, source metricsSource) (*Collector, error) {
	c := NewCollector(source)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler serves the metrics gathered by g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.dropped
	if c.suppressed != nil {
		ch <- c.suppressed
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snapshot.Counters[d.id]))
	}

	for _, d := range c.histograms {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// The in-process histogram keeps no sum.
		ch <- prometheus.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
	if s, ok := c.source.(suppressionSource); ok && c.suppressed != nil {
		ch <- prometheus.MustNewConstMetric(c.suppressed, prometheus.CounterValue, float64(s.AuditSuppressed()))
	}
}
