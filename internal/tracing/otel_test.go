package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitAndShutdown(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("", WithServiceVersion("test"), WithSampleRatio(2)))
	require.NoError(t, InitOpenTelemetry("again"))

	ctx, span := StartSpan(context.Background(), "feedbackbot.test", "unit", attribute.String("k", "v"))
	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	EndSpan(span, errors.New("boom"))

	require.NoError(t, ShutdownOpenTelemetry(context.Background()))
	require.NoError(t, ShutdownOpenTelemetry(context.Background()))

	// Re-initialising after shutdown works
	require.NoError(t, InitOpenTelemetry(ServiceName))
	require.NoError(t, ShutdownOpenTelemetry(context.Background()))
}

func TestStartSpanKeepsExistingTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "existing")
	ctx, span := StartSpan(ctx, "feedbackbot.test", "unit")
	defer EndSpan(span, nil)

	assert.Equal(t, "existing", GetTraceID(ctx))
}
