package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type snapshotSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
}

// latencyGauges carries one cumulative gauge per bucket plus the sample count.
type latencyGauges struct {
	id      authflow.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes an authflow metrics snapshot through OpenTelemetry.
type OTelExporter struct {
	src          snapshotSource
	registration metric.Registration

	counters     map[authflow.MetricID]metric.Int64ObservableCounter
	latency      []latencyGauges
	auditDropped metric.Int64ObservableCounter
	observables  []metric.Observable
}

// NewOTelExporter registers observable instruments for every authflow metric
// on meter. Values are read from c on each collection.
func NewOTelExporter(meter metric.Meter, c *authflow.Coordinator) (*OTelExporter, error) {
	if c == nil {
		return nil, ErrNilSource
	}
	return newExporter(meter, c)
}

func newExporter(meter metric.Meter, src snapshotSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if src == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		src:      src,
		counters: make(map[authflow.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	if err := e.instrument(meter); err != nil {
		return nil, err
	}

	registration, err := meter.RegisterCallback(e.observe, e.observables...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) instrument(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		e.observables = append(e.observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		g := latencyGauges{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Cumulative bucket."))
			if err != nil {
				return fmt.Errorf("otel: gauge %s: %w", name, err)
			}
			g.buckets[i] = ins
			e.observables = append(e.observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return fmt.Errorf("otel: gauge %s_count: %w", def.Name, err)
		}
		g.count = count
		e.observables = append(e.observables, count)
		e.latency = append(e.latency, g)
	}

	dropped, err := meter.Int64ObservableCounter("authflow_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."))
	if err != nil {
		return fmt.Errorf("otel: audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	e.observables = append(e.observables, dropped)
	return nil
}

// observe runs once per collection cycle.
func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.src.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, g := range e.latency {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[g.id]))
		for i, ins := range g.buckets {
			o.ObserveInt64(ins, int64(buckets[i]))
		}
		o.ObserveInt64(g.count, int64(buckets[len(buckets)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.src.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
