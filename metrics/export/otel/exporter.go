package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() portalguard.MetricsSnapshot
	AuditDropped() uint64
}

type suppressionSource interface {
	AuditSuppressed() uint64
}

type observedCounter struct {
	id         portalguard.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      portalguard.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes guard metrics as OTel observable instruments. One
// callback reads the guard snapshot per collection cycle.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter

	// set only when source implements suppressionSource
	suppressed      suppressionSource
	auditSuppressed metric.Int64ObservableCounter
}

// New registers instruments for every guard metric on meter.
func New(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative check latency bucket."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countIns, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Check latency sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		e.histograms = append(e.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	if ss, ok := source.(suppressionSource); ok {
		ins, err := meter.Int64ObservableCounter(internaldefs.AuditSuppressedName, metric.WithDescription(internaldefs.AuditSuppressedHelp))
		if err != nil {
			return nil, fmt.Errorf("create audit suppressed counter: %w", err)
		}
		e.suppressed = ss
		e.auditSuppressed = ins
		observables = append(observables, ins)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i := range cumulative {
			observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	if e.suppressed != nil {
		observer.ObserveInt64(e.auditSuppressed, int64(e.suppressed.AuditSuppressed()))
	}
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
