package circuitbreaker

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHTTPWrapperTripsOn5xx(t *testing.T) {
	t.Setenv("CB_TESTHTTP_FAILURE_THRESHOLD", "2")
	t.Setenv("CB_TESTHTTP_TIMEOUT", "1m")

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hw := NewHTTPWrapper(nil, "testhttp", "test", 2*time.Second, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := hw.Do(req)
		require.NoError(t, err, "5xx responses are returned to the caller")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		resp.Body.Close()
	}

	assert.Equal(t, StateOpen, hw.Breaker().State())

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := hw.Do(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitBreakerOpen))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "open breaker must not reach the server")
}

func TestHTTPWrapper4xxDoesNotTrip(t *testing.T) {
	t.Setenv("CB_TESTHTTP4_FAILURE_THRESHOLD", "1")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	hw := NewHTTPWrapper(nil, "testhttp4", "test", time.Second, zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := hw.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, StateClosed, hw.Breaker().State())

	b, ok := DefaultRegistry.Lookup("testhttp4")
	require.True(t, ok)
	assert.Same(t, hw.Breaker(), b)
}
