package observability

import (
	"context"

	tagpool "github.com/kodecache/tagpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kodecache/tagpool"

// OTelRegistration holds the instruments registered by RegisterOTelMetrics,
// so tests (or a caller that wants to unregister) can reference them.
type OTelRegistration struct {
	hits        metric.Int64ObservableCounter
	misses      metric.Int64ObservableCounter
	saves       metric.Int64ObservableCounter
	deletes     metric.Int64ObservableCounter
	invalidates metric.Int64ObservableCounter
	errors      metric.Int64ObservableCounter

	callback metric.Registration
}

// Unregister stops the collection callback, releasing it from the
// MeterProvider. Safe to call on a nil callback (e.g. in tests that build an
// OTelRegistration by hand).
func (r *OTelRegistration) Unregister() error {
	if r == nil || r.callback == nil {
		return nil
	}
	return r.callback.Unregister()
}

// RegisterOTelMetrics registers observable counters against the global
// OpenTelemetry MeterProvider, one per pool in the registry. pools is
// re-read on every collection so newly-constructed stores show up without
// re-registering.
func RegisterOTelMetrics(registry *tagpool.Registry) (*OTelRegistration, error) {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	reg := &OTelRegistration{}
	var err error

	reg.hits, err = meter.Int64ObservableCounter(
		"tagpool.hits",
		metric.WithDescription("Total number of item fetches served from the backend"),
	)
	if err != nil {
		return nil, err
	}
	reg.misses, err = meter.Int64ObservableCounter(
		"tagpool.misses",
		metric.WithDescription("Total number of item fetches with no value"),
	)
	if err != nil {
		return nil, err
	}
	reg.saves, err = meter.Int64ObservableCounter(
		"tagpool.saves",
		metric.WithDescription("Total number of items committed to the backend"),
	)
	if err != nil {
		return nil, err
	}
	reg.deletes, err = meter.Int64ObservableCounter(
		"tagpool.deletes",
		metric.WithDescription("Total number of items deleted"),
	)
	if err != nil {
		return nil, err
	}
	reg.invalidates, err = meter.Int64ObservableCounter(
		"tagpool.invalidates",
		metric.WithDescription("Total number of tag invalidations"),
	)
	if err != nil {
		return nil, err
	}
	reg.errors, err = meter.Int64ObservableCounter(
		"tagpool.errors",
		metric.WithDescription("Total number of backend-fatal errors observed"),
	)
	if err != nil {
		return nil, err
	}

	reg.callback, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		for name, pool := range registry.Pools() {
			stats := pool.Stats()
			attrs := metric.WithAttributes(attribute.String("tagpool.store", name))

			o.ObserveInt64(reg.hits, stats.Hits, attrs)
			o.ObserveInt64(reg.misses, stats.Misses, attrs)
			o.ObserveInt64(reg.saves, stats.Saves, attrs)
			o.ObserveInt64(reg.deletes, stats.Deletes, attrs)
			o.ObserveInt64(reg.invalidates, stats.Invalidates, attrs)
			o.ObserveInt64(reg.errors, stats.Errors, attrs)
		}
		return nil
	}, reg.hits, reg.misses, reg.saves, reg.deletes, reg.invalidates, reg.errors)
	if err != nil {
		return nil, err
	}

	return reg, nil
}
