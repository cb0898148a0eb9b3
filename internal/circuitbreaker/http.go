package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper is an http.RoundTripper that routes every request of one dependency
// through a breaker. 5xx responses count as breaker failures but are still handed
// back to the caller; 4xx responses never trip it.
type HTTPWrapper struct {
	base      http.RoundTripper
	cb        *Breaker
	client    *http.Client
	component string
}

// NewHTTPWrapper builds a wrapper for dependency using SettingsFor(dependency).
// A nil base uses http.DefaultTransport; timeout bounds the client returned by Client.
func NewHTTPWrapper(base http.RoundTripper, dependency, component string, timeout time.Duration, logger *zap.Logger) *HTTPWrapper {
	if base == nil {
		base = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cb := New(dependency, SettingsFor(dependency), logger)
	DefaultRegistry.Register(component, cb)
	hw := &HTTPWrapper{base: base, cb: cb, component: component}
	hw.client = &http.Client{Timeout: timeout, Transport: hw}
	return hw
}

// RoundTrip implements http.RoundTripper.
func (hw *HTTPWrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var err error
		resp, err = hw.base.RoundTrip(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return &serverError{code: resp.StatusCode}
		}
		return nil
	})

	RecordRequest(hw.cb.Name(), hw.component, hw.cb.State(), err == nil)

	if _, ok := err.(*serverError); ok {
		return resp, nil
	}
	return resp, err
}

// Do sends req through the breaker using the wrapper's client.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	return hw.client.Do(req)
}

// Client returns an *http.Client whose transport is the wrapper, for SDKs that take a client.
func (hw *HTTPWrapper) Client() *http.Client { return hw.client }

// Breaker exposes the underlying breaker for health reporting.
func (hw *HTTPWrapper) Breaker() *Breaker { return hw.cb }

type serverError struct{ code int }

func (e *serverError) Error() string { return http.StatusText(e.code) }
