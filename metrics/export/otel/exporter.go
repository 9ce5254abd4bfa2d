package otel

import (
	"context"
	"errors"
	"fmt"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is satisfied by *blogAuth.Engine.
type MetricsSource interface {
	MetricsSnapshot() blogAuth.MetricsSnapshot
}

type counterBinding struct {
	id  blogAuth.MetricID
	ins metric.Int64ObservableCounter
}

// histogramBinding mirrors one engine histogram as gauges: one per
// cumulative bucket plus count and sum.
type histogramBinding struct {
	id      blogAuth.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

// Exporter publishes engine counters through observable instruments. Values
// are read from the source once per collection cycle.
type Exporter struct {
	source       MetricsSource
	counters     []counterBinding
	histograms   []histogramBinding
	registration metric.Registration
}

// New registers the instruments on meter. Call Close to unregister.
func New(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterBinding{id: def.ID, ins: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		hb, obs, err := bindHistogram(meter, def)
		if err != nil {
			return nil, err
		}
		e.histograms = append(e.histograms, hb)
		observables = append(observables, obs...)
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func bindHistogram(meter metric.Meter, def internaldefs.HistogramDef) (histogramBinding, []metric.Observable, error) {
	hb := histogramBinding{id: def.ID}
	var obs []metric.Observable

	for _, b := range internaldefs.Buckets {
		name := def.Name + "_bucket_le_" + b.Suffix
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return hb, nil, fmt.Errorf("gauge %s: %w", name, err)
		}
		hb.buckets = append(hb.buckets, g)
		obs = append(obs, g)
	}

	var err error
	if hb.count, err = meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram sample count.")); err != nil {
		return hb, nil, fmt.Errorf("gauge %s_count: %w", def.Name, err)
	}
	if hb.sum, err = meter.Float64ObservableGauge(def.Name+"_sum", metric.WithDescription("Histogram sample sum."), metric.WithUnit("s")); err != nil {
		return hb, nil, fmt.Errorf("gauge %s_sum: %w", def.Name, err)
	}
	return hb, append(obs, hb.count, hb.sum), nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snap.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cum := internaldefs.Cumulative(snap.Histograms[h.id])
		for i, g := range h.buckets {
			o.ObserveInt64(g, int64(cum[i]))
		}
		o.ObserveInt64(h.count, int64(cum[len(cum)-1]))
		o.ObserveFloat64(h.sum, snap.HistogramSums[h.id].Seconds())
	}
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
