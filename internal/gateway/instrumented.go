package gateway

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/storefront/storefront-sync/internal/gateway"

var (
	metricsOnce     sync.Once
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
	refreshCounter  metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)

		var err error
		requestCounter, err = meter.Int64Counter(
			"gateway.requests",
			metric.WithDescription("Total API requests dispatched, including retries"),
		)
		if err != nil {
			otel.Handle(err)
		}

		requestDuration, err = meter.Float64Histogram(
			"gateway.request.duration",
			metric.WithDescription("API request duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}

		refreshCounter, err = meter.Int64Counter(
			"gateway.refreshes",
			metric.WithDescription("Credential refresh attempts"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func recordRequest(ctx context.Context, method string, err error, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("gateway.outcome", Kind(err).String()),
	)

	if requestCounter != nil {
		requestCounter.Add(ctx, 1, attrs)
	}
	if requestDuration != nil {
		requestDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

func recordRefresh(ctx context.Context, err error) {
	if refreshCounter == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	refreshCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("gateway.refresh.outcome", outcome)),
	)
}
