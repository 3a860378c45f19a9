package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	sessionsTotal       metric.Int64Counter
	stepsFinishedTotal  metric.Int64Counter
	stepDuration        metric.Float64Histogram
	workflowsTotal      metric.Int64Counter
	workflowDuration    metric.Float64Histogram
	layerClicksTotal    metric.Int64Counter
}

var (
	metricsOnce sync.Once
	m           metrics
)

func buildMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled || !cfg.MetricsEnabled {
		return sdkmetric.NewMeterProvider(), nil
	}

	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter),
		),
	), nil
}

func initInstruments() {
	metricsOnce.Do(func() {
		meter := otel.Meter("geoflow/runtime")
		m.httpRequestsTotal, _ = meter.Int64Counter("geoflow.http.server.requests_total")
		m.httpRequestDuration, _ = meter.Float64Histogram("geoflow.http.server.request_duration_ms")
		m.sessionsTotal, _ = meter.Int64Counter("geoflow.sessions.created_total")
		m.stepsFinishedTotal, _ = meter.Int64Counter("geoflow.steps.finished_total")
		m.stepDuration, _ = meter.Float64Histogram("geoflow.steps.duration_ms")
		m.workflowsTotal, _ = meter.Int64Counter("geoflow.workflows.completed_total")
		m.workflowDuration, _ = meter.Float64Histogram("geoflow.workflows.duration_ms")
		m.layerClicksTotal, _ = meter.Int64Counter("geoflow.layers.clicks_total")
	})
}

func RecordHTTPRequest(ctx context.Context, method, route string, status int, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.Int(AttrHTTPStatusCode, status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationMS, attrs)
}

// RecordSessionCreated counts a submitted query. template is "" when nothing matched.
func RecordSessionCreated(ctx context.Context, template string) {
	initInstruments()
	m.sessionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrTemplateName, template),
		attribute.Bool("matched", template != ""),
	))
}

func RecordStepFinished(ctx context.Context, status string, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(attribute.String(AttrStepStatus, status))
	m.stepsFinishedTotal.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, durationMS, attrs)
}

func RecordWorkflowCompleted(ctx context.Context, category string, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(attribute.String(AttrLayerCategory, category))
	m.workflowsTotal.Add(ctx, 1, attrs)
	m.workflowDuration.Record(ctx, durationMS, attrs)
}

func RecordLayerClick(ctx context.Context, category string) {
	initInstruments()
	m.layerClicksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrLayerCategory, category)))
}
