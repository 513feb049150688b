package observability

// https://opentelemetry.io/docs/languages/go/exporters/

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// NewConsoleMeterProvider serves for test/dev environment.
func NewConsoleMeterProvider(interval, timeout time.Duration, opts ...stdoutmetric.Option) (*metric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(opts...)
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(
		exporter,
		metric.WithInterval(interval),
		metric.WithTimeout(timeout),
	)))
	return mp, nil
}

// NewPrometheusMeterProvider serves for the product environment and the
// stats metrics are fetched by HTTP from the prometheus registerer.
func NewPrometheusMeterProvider(opts ...otelprom.Option) (*metric.MeterProvider, error) {
	exporter, err := otelprom.New(opts...)
	if err != nil {
		return nil, err
	}
	return metric.NewMeterProvider(metric.WithReader(exporter)), nil
}

// InstallMeterProvider sets mp as the global provider, the callback
// flushes and shuts it down.
func InstallMeterProvider(mp *metric.MeterProvider) func(ctx context.Context) error {
	otel.SetMeterProvider(mp)
	return mp.Shutdown
}
