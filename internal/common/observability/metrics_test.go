package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestObservability_RecordsSpansAndMetrics(t *testing.T) {
	reg := promclient.NewRegistry()
	recorder := tracetest.NewSpanRecorder()

	obs, err := New(Options{
		ServiceName:    "astro-test",
		TraceSampling:  1,
		Registerer:     reg,
		SpanProcessors: []sdktrace.SpanProcessor{recorder},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	ctx, span := obs.StartSpan(context.Background(), "generate", attribute.String("model", "m"))
	obs.RecordGeneration(ctx, "success", 120*time.Millisecond)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "generate", ended[0].Name())

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "generate_requests")
	assert.Contains(t, joined, "generate_duration")
}

func TestObservability_SamplingZeroDropsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs, err := New(Options{
		TraceSampling:  0,
		Registerer:     promclient.NewRegistry(),
		SpanProcessors: []sdktrace.SpanProcessor{recorder},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	_, span := obs.StartSpan(context.Background(), "generate")
	span.End()

	assert.Empty(t, recorder.Ended())
}
