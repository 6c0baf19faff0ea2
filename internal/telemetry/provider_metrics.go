package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const providerMeterName = "github.com/roadtripper/roadtripper/internal/telemetry"

// ProviderMetrics records calls made to external map providers.
// A nil *ProviderMetrics is valid and records nothing.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	resultCount     metric.Int64Histogram
}

// NewProviderMetrics creates the provider call instruments.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(providerMeterName)

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	resultCount, err := meter.Int64Histogram(
		"provider.result.count",
		metric.WithDescription("Number of results returned per provider request"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		resultCount:     resultCount,
	}, nil
}

// RecordRequest records one provider call and how many results it produced.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, results int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// detached from the request so cancellation does not drop the sample
	ctx := context.Background()
	opts := metric.WithAttributes(attrs...)
	m.requestDuration.Record(ctx, duration.Seconds(), opts)
	m.requestTotal.Add(ctx, 1, opts)
	if err == nil {
		m.resultCount.Record(ctx, int64(results), opts)
	}
}
