package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// Default service name for traces
	DefaultServiceName = "searchflow"
)

var (
	// Global tracer provider
	tracerProvider *sdktrace.TracerProvider

	// Global tracer
	tracer trace.Tracer
)

// Config holds tracing configuration
type Config struct {
	// ServiceName is the name of the service (defaults to "searchflow")
	ServiceName string `yaml:"service_name"`

	// Enabled controls whether tracing is enabled
	Enabled bool `yaml:"enabled"`

	// ExporterType specifies the exporter: "otlp", "stdout", or "none"
	ExporterType string `yaml:"exporter"`

	// OTLPEndpoint is the OTLP/HTTP collector endpoint (host:port)
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// OTLPHeaders are additional headers for OTLP requests (e.g., authorization)
	OTLPHeaders map[string]string `yaml:"otlp_headers"`

	// Insecure disables TLS towards the collector
	Insecure bool `yaml:"insecure"`
}

// Init initializes tracing with the given configuration.
// A disabled config installs the global (no-op unless replaced) tracer.
func Init(config Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	if !config.Enabled || config.ExporterType == "none" || config.ExporterType == "" {
		logger.Debug("tracing disabled")
		tracer = otel.GetTracerProvider().Tracer(config.ServiceName)
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch config.ExporterType {
	case "otlp":
		exporter, err = createOTLPExporter(config)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		logger.Info("tracing initialized", zap.String("exporter", "otlp"), zap.String("endpoint", config.OTLPEndpoint))

	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		logger.Info("tracing initialized", zap.String("exporter", "stdout"))

	default:
		return fmt.Errorf("unknown exporter type: %s", config.ExporterType)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(config.ServiceName)

	return nil
}

// SetTracerProvider installs tp as the global provider. Tests use it with an
// in-memory recorder.
func SetTracerProvider(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(DefaultServiceName)
}

// Shutdown flushes pending spans and stops the exporter.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	return tracerProvider.Shutdown(ctx)
}

// StartSpanWithOtel creates a new span with the given name and OpenTelemetry options.
// Returns a context carrying the span and the span itself.
func StartSpanWithOtel(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tr := tracer
	if tr == nil {
		tr = otel.GetTracerProvider().Tracer(DefaultServiceName)
	}

	return tr.Start(ctx, name, opts...)
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func createOTLPExporter(config Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(config.OTLPHeaders) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.OTLPHeaders))
	}

	client := otlptracehttp.NewClient(opts...)
	return otlptrace.New(context.Background(), client)
}

// ParseHeaders parses the OTEL_EXPORTER_OTLP_HEADERS format "key1=value1,key2=value2".
func ParseHeaders(headerStr string) map[string]string {
	if headerStr == "" {
		return nil
	}

	headers := make(map[string]string)
	for _, pair := range strings.Split(headerStr, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		headers[k] = strings.TrimSpace(v)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
