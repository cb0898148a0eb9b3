package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInitializeDisabledIsSafe(t *testing.T) {
	shutdown, err := Initialize(Config{Enabled: false}, "test", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := StartNodeSpan(context.Background(), "analyze", "factual")
	EndSpan(span, errors.New("boom"))

	// The no-op provider produces invalid span contexts, so nothing is injected.
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", nil)
	InjectTraceparent(ctx, req)
	assert.Empty(t, req.Header.Get("traceparent"))
}

func TestParseTraceparent(t *testing.T) {
	traceID, spanID, flags, ok := ParseTraceparent("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	require.True(t, ok)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)
	assert.Equal(t, "00f067aa0ba902b7", spanID)
	assert.Equal(t, byte(1), flags)

	for _, bad := range []string{"", "00-abc", "01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", "00-short-00f067aa0ba902b7-01"} {
		_, _, _, ok := ParseTraceparent(bad)
		assert.False(t, ok, bad)
	}
}
