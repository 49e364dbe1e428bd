package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/csverma610/medkit/internal/cache"

// Metrics counts cache outcomes per module. A nil *Metrics records nothing.
type Metrics struct {
	hits           metric.Int64Counter
	misses         metric.Int64Counter
	decodeFailures metric.Int64Counter
	storeFailures  metric.Int64Counter
	generations    metric.Int64Counter
}

// NewMetrics creates the cache counters on meter. A nil meter uses the global
// meter provider, which is a no-op until one is installed.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.hits, "medkit.cache.hits", "Lookups served from the module store", "{lookup}"},
		{&m.misses, "medkit.cache.misses", "Lookups that had to generate", "{lookup}"},
		{&m.decodeFailures, "medkit.cache.decode_failures", "Stored entries that failed to decode or were stale", "{entry}"},
		{&m.storeFailures, "medkit.cache.store_failures", "Store open, read or write failures", "{error}"},
		{&m.generations, "medkit.cache.generations", "Calls to the generation function", "{call}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, module string) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("module", module)))
}

func (m *Metrics) hit(ctx context.Context, module string) {
	if m != nil {
		m.add(ctx, m.hits, module)
	}
}

func (m *Metrics) miss(ctx context.Context, module string) {
	if m != nil {
		m.add(ctx, m.misses, module)
	}
}

func (m *Metrics) decodeFailure(ctx context.Context, module string) {
	if m != nil {
		m.add(ctx, m.decodeFailures, module)
	}
}

func (m *Metrics) storeFailure(ctx context.Context, module string) {
	if m != nil {
		m.add(ctx, m.storeFailures, module)
	}
}

func (m *Metrics) generation(ctx context.Context, module string) {
	if m != nil {
		m.add(ctx, m.generations, module)
	}
}
