// Package telemetry configures the OpenTelemetry metrics pipeline for
// orderdesk.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	apimetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "orderdesk"

// Init configures the OTLP metric exporter for endpoint. An empty endpoint
// yields a noop provider, so instrumented code never needs to check.
func Init(ctx context.Context, endpoint string) (apimetric.MeterProvider, func(context.Context) error, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		mp := noop.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, func(context.Context) error { return nil }, nil
	}

	host, insecure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, nil, err
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(host)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	return mp, mp.Shutdown, nil
}

func parseEndpoint(raw string) (string, bool, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse otlp endpoint: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = raw
	}
	insecure := parsed.Scheme != "https"
	return host, insecure, nil
}

// Counters records named counters through a MeterProvider. It satisfies the
// metrics surface the rest of the codebase logs through.
type Counters struct {
	meter apimetric.Meter

	mu       sync.Mutex
	counters map[string]apimetric.Float64Counter
}

// NewCounters returns a Counters backed by provider.
func NewCounters(provider apimetric.MeterProvider) *Counters {
	return &Counters{
		meter:    provider.Meter(serviceName),
		counters: make(map[string]apimetric.Float64Counter),
	}
}

// IncCounter adds value to the named counter with optional attributes.
func (c *Counters) IncCounter(name string, value float64, attrs map[string]string) {
	counter, err := c.counter(name)
	if err != nil {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, apimetric.WithAttributes(kvs...))
}

func (c *Counters) counter(name string) (apimetric.Float64Counter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok := c.counters[name]; ok {
		return counter, nil
	}
	counter, err := c.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	c.counters[name] = counter
	return counter, nil
}
