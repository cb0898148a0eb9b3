package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agenticrag_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "component"},
	)

	breakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_circuit_breaker_requests_total",
			Help: "Requests routed through a circuit breaker",
		},
		[]string{"name", "component", "state", "result"},
	)

	breakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenticrag_circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "component", "from_state", "to_state"},
	)

	breakerOpenSince = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agenticrag_circuit_breaker_open_since_seconds",
			Help: "Unix time the breaker last opened (0 if not open)",
		},
		[]string{"name", "component"},
	)
)

type registration struct {
	component string
	breaker   *Breaker
}

// Registry tracks breakers so their state gauges stay current and health checks can find them.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]registration)}
}

// DefaultRegistry is shared by every wrapper in the process.
var DefaultRegistry = NewRegistry()

// Register records b under component and hooks transition metrics.
func (r *Registry) Register(component string, b *Breaker) {
	r.mu.Lock()
	r.breakers[b.Name()] = registration{component: component, breaker: b}
	r.mu.Unlock()

	breakerState.WithLabelValues(b.Name(), component).Set(float64(b.State()))
	b.OnStateChange(func(name string, from, to State) {
		breakerStateChanges.WithLabelValues(name, component, from.String(), to.String()).Inc()
		breakerState.WithLabelValues(name, component).Set(float64(to))
		if to == StateOpen {
			breakerOpenSince.WithLabelValues(name, component).SetToCurrentTime()
		} else if from == StateOpen {
			breakerOpenSince.WithLabelValues(name, component).Set(0)
		}
	})
}

// Lookup returns the breaker registered under name.
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.breakers[name]
	return reg.breaker, ok
}

// Snapshot returns the current state of every registered breaker.
func (r *Registry) Snapshot() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, reg := range r.breakers {
		out[name] = reg.breaker.State()
	}
	return out
}

// RecordRequest counts one call outcome.
func RecordRequest(name, component string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	breakerRequests.WithLabelValues(name, component, state.String(), result).Inc()
}

func (r *Registry) refresh() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, reg := range r.breakers {
		breakerState.WithLabelValues(name, reg.component).Set(float64(reg.breaker.State()))
	}
}

// StartMetricsCollection refreshes state gauges every 10s until stop is closed.
// Refreshing matters for open breakers, which only move to half-open when observed.
func StartMetricsCollection(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				DefaultRegistry.refresh()
			}
		}
	}()
}
