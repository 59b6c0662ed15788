package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"vsme-guru/internal/common/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type options struct {
	registerer     promclient.Registerer
	spanProcessors []sdktrace.SpanProcessor
}

// Option customizes New.
type Option func(*options)

// WithRegisterer registers the OpenTelemetry Prometheus exporter with reg
// instead of the default registry.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSpanProcessor adds a span processor to the tracer provider.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcessors = append(o.spanProcessors, sp) }
}

// Observability owns the OpenTelemetry meter and tracer providers of the
// service. A zero value is safe to use and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	requestCounter    otelmetric.Int64Counter
	requestDuration   otelmetric.Float64Histogram
	stepCounter       otelmetric.Int64Counter
	validationCounter otelmetric.Int64Counter
	submitCounter     otelmetric.Int64Counter
	submitDuration    otelmetric.Float64Histogram
}

func New(serviceName string, log logger.Logger, opts ...Option) *Observability {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithSampler(sdktrace.AlwaysSample())}
	for _, sp := range cfg.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	o := &Observability{
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(serviceName),
	}

	var exporterOpts []prometheus.Option
	if cfg.registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(cfg.registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err})
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	otel.SetTracerProvider(tracerProvider)
	o.meterProvider = provider

	meter := provider.Meter(serviceName)

	o.requestCounter, _ = meter.Int64Counter(
		"http.server.requests",
		otelmetric.WithDescription("Number of HTTP requests served"),
	)
	o.requestDuration, _ = meter.Float64Histogram(
		"http.server.duration",
		otelmetric.WithDescription("HTTP request duration"),
		otelmetric.WithUnit("ms"),
	)
	o.stepCounter, _ = meter.Int64Counter(
		"wizard.step.changes",
		otelmetric.WithDescription("Number of wizard step changes"),
	)
	o.validationCounter, _ = meter.Int64Counter(
		"wizard.validation.issues",
		otelmetric.WithDescription("Number of validation issues reported to users"),
	)
	o.submitCounter, _ = meter.Int64Counter(
		"wizard.submissions",
		otelmetric.WithDescription("Number of report submissions"),
	)
	o.submitDuration, _ = meter.Float64Histogram(
		"wizard.submission.duration",
		otelmetric.WithDescription("Report submission duration"),
		otelmetric.WithUnit("ms"),
	)
	return o
}

// StartSpan starts a span on the service tracer.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Middleware traces each request and records its count and duration, labelled
// with the chi route pattern.
func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := o.StartSpan(r.Context(), r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		attrs := otelmetric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(status)),
		)
		if o.requestCounter != nil {
			o.requestCounter.Add(ctx, 1, attrs)
		}
		if o.requestDuration != nil {
			o.requestDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		}
	})
}

// StepChanged, ValidationFailed and SubmissionCompleted let Observability
// serve as a wizard engine recorder.
func (o *Observability) StepChanged(from, to int) {
	if o.stepCounter != nil {
		o.stepCounter.Add(context.Background(), 1, otelmetric.WithAttributes(
			attribute.Int("from", from),
			attribute.Int("to", to),
		))
	}
}

func (o *Observability) ValidationFailed(step, issues int) {
	if o.validationCounter != nil {
		o.validationCounter.Add(context.Background(), int64(issues), otelmetric.WithAttributes(
			attribute.Int("step", step),
		))
	}
}

func (o *Observability) SubmissionCompleted(outcome string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	if o.submitCounter != nil {
		o.submitCounter.Add(context.Background(), 1, attrs)
	}
	if o.submitDuration != nil {
		o.submitDuration.Record(context.Background(), float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
