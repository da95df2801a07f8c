package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInitDisabled(t *testing.T) {
	require.NoError(t, Init(Config{Enabled: false}, nil))
	require.NoError(t, Init(Config{Enabled: true, ExporterType: "none"}, nil))
}

func TestInitUnknownExporter(t *testing.T) {
	err := Init(Config{Enabled: true, ExporterType: "zipkin"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown exporter type")
}

func TestStartSpanWithOtel(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	ctx, span := StartSpanWithOtel(context.Background(), "stage.dispatch",
		trace.WithAttributes(attribute.String("stage.name", "researcher")))
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	EndSpan(span, nil)

	_, failed := StartSpanWithOtel(context.Background(), "stage.failed")
	EndSpan(failed, errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "stage.dispatch", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "boom", ended[1].Status().Description)
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{name: "empty", in: "", want: nil},
		{name: "single", in: "authorization=Bearer x", want: map[string]string{"authorization": "Bearer x"}},
		{name: "multiple with spaces", in: "a=1, b=2", want: map[string]string{"a": "1", "b": "2"}},
		{name: "malformed pairs skipped", in: "novalue,=x", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseHeaders(tt.in))
		})
	}
}
