package health

import (
	"context"
	"time"

	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
	"github.com/shahryar908/agenticrag/internal/vectordb"
)

// VectorStoreChecker counts documents in the vector store. Retrieval depends on it.
type VectorStoreChecker struct {
	store   vectordb.Store
	timeout time.Duration
}

func NewVectorStoreChecker(store vectordb.Store) *VectorStoreChecker {
	return &VectorStoreChecker{store: store, timeout: 5 * time.Second}
}

func (v *VectorStoreChecker) Name() string           { return "vector_store" }
func (v *VectorStoreChecker) IsCritical() bool       { return true }
func (v *VectorStoreChecker) Timeout() time.Duration { return v.timeout }

func (v *VectorStoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	n, err := v.store.Count(ctx)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: v.store.Name() + " count failed",
			Details: map[string]interface{}{"backend": v.store.Name()},
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: v.store.Name() + " healthy",
		Details: map[string]interface{}{
			"backend":    v.store.Name(),
			"documents":  n,
			"latency_ms": latency.Milliseconds(),
		},
	}
}

// RedisHealthChecker checks the embedding cache. Redis is optional, so failures only degrade.
type RedisHealthChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	timeout time.Duration
}

// NewRedisHealthChecker creates a Redis health checker
func NewRedisHealthChecker(wrapper *circuitbreaker.RedisWrapper) *RedisHealthChecker {
	return &RedisHealthChecker{wrapper: wrapper, timeout: 3 * time.Second}
}

func (r *RedisHealthChecker) Name() string           { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool       { return false }
func (r *RedisHealthChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	if r.wrapper.IsOpen() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   "circuit breaker open",
			Message: "Redis circuit breaker is open",
		}
	}

	start := time.Now()
	err := r.wrapper.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: "Redis ping failed",
		}
	}

	result := CheckResult{
		Status:  StatusHealthy,
		Message: "Redis healthy",
		Details: map[string]interface{}{"latency_ms": latency.Milliseconds()},
	}
	if latency > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	}
	return result
}

// DatabaseHealthChecker pings the run log database.
type DatabaseHealthChecker struct {
	wrapper *circuitbreaker.SQLWrapper
	timeout time.Duration
}

// NewDatabaseHealthChecker creates a database health checker
func NewDatabaseHealthChecker(wrapper *circuitbreaker.SQLWrapper) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{wrapper: wrapper, timeout: 5 * time.Second}
}

func (d *DatabaseHealthChecker) Name() string           { return "run_log_database" }
func (d *DatabaseHealthChecker) IsCritical() bool       { return false }
func (d *DatabaseHealthChecker) Timeout() time.Duration { return d.timeout }

func (d *DatabaseHealthChecker) Check(ctx context.Context) CheckResult {
	if d.wrapper.IsOpen() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   "circuit breaker open",
			Message: "Database circuit breaker is open",
		}
	}
	if err := d.wrapper.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "Database ping failed"}
	}
	return CheckResult{Status: StatusHealthy, Message: "Database healthy"}
}

// BreakerChecker reports a dependency through its circuit breaker without calling it.
type BreakerChecker struct {
	name     string
	breaker  *circuitbreaker.Breaker
	critical bool
}

func NewBreakerChecker(name string, breaker *circuitbreaker.Breaker, critical bool) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker, critical: critical}
}

func (b *BreakerChecker) Name() string           { return b.name }
func (b *BreakerChecker) IsCritical() bool       { return b.critical }
func (b *BreakerChecker) Timeout() time.Duration { return time.Second }

func (b *BreakerChecker) Check(context.Context) CheckResult {
	state := b.breaker.State()
	counts := b.breaker.Counts()
	details := map[string]interface{}{
		"state":                state.String(),
		"requests":             counts.Requests,
		"consecutive_failures": counts.ConsecutiveFailures,
	}
	switch state {
	case circuitbreaker.StateOpen:
		return CheckResult{Status: StatusUnhealthy, Error: "circuit breaker open", Message: b.name + " unavailable", Details: details}
	case circuitbreaker.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: b.name + " recovering", Details: details}
	default:
		return CheckResult{Status: StatusHealthy, Message: b.name + " healthy", Details: details}
	}
}

// CustomHealthChecker allows for custom health check implementations
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

// NewCustomHealthChecker creates a custom health checker
func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomHealthChecker {
	return &CustomHealthChecker{name: name, critical: critical, timeout: timeout, checkFn: checkFn}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}
