package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// reading is what one collection sees: a single snapshot with histogram
// buckets already made cumulative.
type reading struct {
	snapshot   goSession.MetricsSnapshot
	cumulative map[goSession.MetricID][8]uint64
	dropped    uint64
}

// observation binds an instrument to the value it reports.
type observation struct {
	instrument metric.Int64Observable
	value      func(*reading) int64
}

// OTelExporter reports session metrics through asynchronous instruments.
type OTelExporter struct {
	source       metricsSource
	observations []observation
	registration metric.Registration
}

// NewOTelExporter registers observable instruments on meter that read from
// client at every collection. Close unregisters them.
func NewOTelExporter(meter metric.Meter, client *goSession.Client) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, client)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		id := def.ID
		e.add(ins, func(r *reading) int64 { return int64(r.snapshot.Counters[id]) })
	}

	for _, def := range internaldefs.HistogramDefs {
		if err := e.addHistogram(meter, def); err != nil {
			return nil, err
		}
	}

	dropped, err := meter.Int64ObservableCounter(
		"gosession_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher queue was full."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.add(dropped, func(r *reading) int64 { return int64(r.dropped) })

	instruments := make([]metric.Observable, len(e.observations))
	for i, o := range e.observations {
		instruments[i] = o.instrument
	}

	registration, err := meter.RegisterCallback(e.collect, instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

// addHistogram exposes one histogram as a cumulative gauge per bucket bound
// plus a total count gauge.
func (e *OTelExporter) addHistogram(meter metric.Meter, def internaldefs.HistogramDef) error {
	id := def.ID
	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		bucket := i
		e.add(ins, func(r *reading) int64 { return int64(r.cumulative[id][bucket]) })
	}

	name := def.Name + "_count"
	ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Histogram total sample count."))
	if err != nil {
		return fmt.Errorf("create histogram count gauge %s: %w", name, err)
	}
	last := len(internaldefs.HistogramBoundSuffix) - 1
	e.add(ins, func(r *reading) int64 { return int64(r.cumulative[id][last]) })
	return nil
}

func (e *OTelExporter) add(ins metric.Int64Observable, value func(*reading) int64) {
	e.observations = append(e.observations, observation{instrument: ins, value: value})
}

func (e *OTelExporter) collect(_ context.Context, observer metric.Observer) error {
	r := &reading{
		snapshot:   e.source.MetricsSnapshot(),
		cumulative: make(map[goSession.MetricID][8]uint64, len(internaldefs.HistogramDefs)),
		dropped:    e.source.AuditDropped(),
	}
	for _, def := range internaldefs.HistogramDefs {
		r.cumulative[def.ID] = internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(r.snapshot.Histograms[def.ID]))
	}

	for _, o := range e.observations {
		observer.ObserveInt64(o.instrument, o.value(r))
	}
	return nil
}

// Close unregisters the callback. The instruments stay on the meter but
// report nothing further.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
