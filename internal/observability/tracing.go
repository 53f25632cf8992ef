package observability

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/model"
)

const tracerName = "github.com/pitabwire/maximiza"

const (
	attrResource    = attribute.Key("console.resource")
	attrAction      = attribute.Key("console.action")
	attrPageID      = attribute.Key("console.page_id")
	attrSessionID   = attribute.Key("console.session_id")
	attrPerfil      = attribute.Key("console.perfil")
	attrMunicipioID = attribute.Key("console.municipio_id")
	attrErrorCode   = attribute.Key("console.error_code")
)

// ResourceAttrs describes an operation on a backend collection.
func ResourceAttrs(resource, action string) []attribute.KeyValue {
	return []attribute.KeyValue{attrResource.String(resource), attrAction.String(action)}
}

// PageAttr names the page definition a span works on.
func PageAttr(pageID string) attribute.KeyValue { return attrPageID.String(pageID) }

// SessionAttrs describes who is acting: the session, its perfil and, for
// municipal sessions, the municipality the data is pinned to.
func SessionAttrs(rctx *model.RequestContext) []attribute.KeyValue {
	if rctx == nil {
		return nil
	}
	attrs := []attribute.KeyValue{attrSessionID.String(rctx.SessionID), attrPerfil.String(rctx.Perfil)}
	if rctx.MunicipioID != "" {
		attrs = append(attrs, attrMunicipioID.String(rctx.MunicipioID))
	}
	return attrs
}

// AnnotateSession tags the request's server span with the session acting on it.
func AnnotateSession(ctx context.Context, rctx *model.RequestContext) {
	trace.SpanFromContext(ctx).SetAttributes(SessionAttrs(rctx)...)
}

// InitTracing installs the console's TracerProvider and W3C propagators.
// The returned shutdown flushes pending spans; with tracing disabled nothing
// is installed and shutdown does nothing.
func InitTracing(ctx context.Context, cfg config.TracingConfig, serviceName, serviceVersion string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: describe %s: %w", serviceName, err)
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: %s exporter: %w", cmp.Or(cfg.Exporter, "otlp"), err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg)),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

// newExporter sends spans to an OTLP collector over gRPC, or pretty-prints
// them on stdout for local runs.
func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "", "otlp":
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	return nil, fmt.Errorf("unsupported exporter %q, want otlp or stdout", cfg.Exporter)
}

// newSampler is parent-based with a ratio clamped to (0, 1]; zero means 0.1.
func newSampler(cfg config.TracingConfig) sdktrace.Sampler {
	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 0.1
	}
	if rate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// StartSpan starts an internal span on the console tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpanWithError ends span. A non-nil err marks it failed and, for
// console errors, records the envelope code.
func EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var env *model.ErrorEnvelope
		if errors.As(err, &env) {
			span.SetAttributes(attrErrorCode.String(env.Code))
		}
	}
	span.End()
}

// SpanIDs returns the active trace and span ids, empty without a span.
func SpanIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		spanID = sc.SpanID().String()
	}
	return traceID, spanID
}

// TracingMiddleware starts a server span per request, continuing any
// inbound W3C traceparent, and echoes the trace context in the response.
// Once routed the span is renamed to the chi route pattern so municipality
// and record ids stay out of span names.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := otel.Tracer(tracerName).Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			),
		)
		defer span.End()

		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
		propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

		r = r.WithContext(ctx)
		next.ServeHTTP(sw, r)

		route := routePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(semconv.HTTPRoute(route), semconv.HTTPResponseStatusCode(sw.status))
		if sw.status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
	})
}

// InjectTraceHeaders writes the current trace context into outbound headers.
func InjectTraceHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
