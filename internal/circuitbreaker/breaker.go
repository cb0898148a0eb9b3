package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the position of a breaker in its closed -> open -> half-open cycle.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests in half-open state")
)

// Counts is a snapshot of the current generation's request outcomes.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker guards calls to a single external dependency.
//
// Counters are scoped to a generation. A generation ends when the state
// changes or when the closed-state interval elapses, so results from calls
// that started in an older generation are discarded.
type Breaker struct {
	name     string
	settings Settings
	logger   *zap.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
	onChange   []func(name string, from, to State)
}

// New creates a closed breaker.
func New(name string, settings Settings, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings = settings.withDefaults()
	b := &Breaker{
		name:     name,
		settings: settings,
		logger:   logger,
		state:    StateClosed,
	}
	b.toNewGeneration(time.Now())
	return b
}

// Name returns the dependency name the breaker was created for.
func (b *Breaker) Name() string { return b.name }

// OnStateChange registers a callback invoked (under the breaker lock) on every transition.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = append(b.onChange, fn)
}

// Execute runs fn when the breaker admits the call and records its outcome.
// A cancelled context is rejected up front and is not counted as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	generation, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(generation, false)
			panic(r)
		}
	}()

	err = fn()
	b.record(generation, err == nil || errors.Is(err, context.Canceled))
	return err
}

// State returns the current state, advancing open -> half-open if the timeout elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.current(time.Now())
	return state
}

// Counts returns the counters for the current generation.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, generation := b.current(time.Now())
	switch {
	case state == StateOpen:
		return generation, ErrCircuitBreakerOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return generation, ErrTooManyRequests
	}
	b.counts.Requests++
	return generation, nil
}

func (b *Breaker) record(before uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.current(now)
	if generation != before {
		return
	}

	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.SuccessThreshold {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.settings.FailureThreshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

func (b *Breaker) current(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.toNewGeneration(now)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.toNewGeneration(now)

	for _, fn := range b.onChange {
		fn(b.name, from, to)
	}

	b.logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (b *Breaker) toNewGeneration(now time.Time) {
	b.generation++
	b.counts = Counts{}

	switch b.state {
	case StateClosed:
		if b.settings.Interval == 0 {
			b.expiry = time.Time{}
		} else {
			b.expiry = now.Add(b.settings.Interval)
		}
	case StateOpen:
		b.expiry = now.Add(b.settings.Timeout)
	default:
		b.expiry = time.Time{}
	}
}
