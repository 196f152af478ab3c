package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestBuildExportsSpansOnFlush(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, closeFn, err := NewTraceProviderBuilder("infoset-worker").
		SetVersion("1.2.3").
		SetExporter(exp).
		Build()
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "Process")
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Process", spans[0].Name)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "infoset-worker", service)

	assert.NoError(t, closeFn(context.Background()))
}

func TestBuildWithoutExporter(t *testing.T) {
	tp, closeFn, err := NewTraceProviderBuilder("infoset-server").SetSampleRatio(0.5).Build()
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	span.End()
	assert.NoError(t, closeFn(context.Background()))
}

func TestBuildNeedsName(t *testing.T) {
	_, _, err := NewTraceProviderBuilder("").Build()
	assert.Error(t, err)
}
