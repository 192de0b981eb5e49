package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/internal/tracing"
)

func TestInitDisabledReturnsNopShutdown(t *testing.T) {
	shutdown, err := tracing.Init(context.Background(), tracing.Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestSpanEndsWithoutPanicWhenDisabled(t *testing.T) {
	_, err := tracing.Init(context.Background(), tracing.Config{Enabled: false})
	require.NoError(t, err)

	ctx, end := tracing.Span(context.Background(), tracing.StageDecode)
	require.NotNil(t, ctx)
	end()
}

func TestTracerIsNamed(t *testing.T) {
	tr := tracing.Tracer()
	require.NotNil(t, tr)
}
