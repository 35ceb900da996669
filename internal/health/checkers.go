package health

import (
	"context"
	"time"

	"github.com/fleetworks/fleet-api/internal/circuitbreaker"
)

// slowThreshold marks a dependency that answers but is slow as degraded.
const slowThreshold = 100 * time.Millisecond

// RedisHealthChecker checks Redis through the guarded client.
type RedisHealthChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	timeout time.Duration
}

func NewRedisHealthChecker(wrapper *circuitbreaker.RedisWrapper) *RedisHealthChecker {
	return &RedisHealthChecker{wrapper: wrapper, timeout: 5 * time.Second}
}

func (r *RedisHealthChecker) Name() string           { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool       { return false } // cache and limiter fail open
func (r *RedisHealthChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	if r.wrapper.IsCircuitBreakerOpen() {
		return CheckResult{Status: StatusUnhealthy, Error: "circuit breaker open", Message: "Redis circuit breaker is open"}
	}
	start := time.Now()
	if err := r.wrapper.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "Redis ping failed"}
	}
	latency := time.Since(start)
	result := CheckResult{
		Status:  StatusHealthy,
		Message: "Redis healthy",
		Details: map[string]interface{}{"latency_ms": latency.Milliseconds()},
	}
	if latency > slowThreshold {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	}
	return result
}

// DatabaseHealthChecker checks PostgreSQL connectivity and pool pressure.
type DatabaseHealthChecker struct {
	wrapper *circuitbreaker.DatabaseWrapper
	timeout time.Duration
}

func NewDatabaseHealthChecker(wrapper *circuitbreaker.DatabaseWrapper) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{wrapper: wrapper, timeout: 5 * time.Second}
}

func (d *DatabaseHealthChecker) Name() string           { return "database" }
func (d *DatabaseHealthChecker) IsCritical() bool       { return true }
func (d *DatabaseHealthChecker) Timeout() time.Duration { return d.timeout }

func (d *DatabaseHealthChecker) Check(ctx context.Context) CheckResult {
	if d.wrapper.IsCircuitBreakerOpen() {
		return CheckResult{Status: StatusUnhealthy, Error: "circuit breaker open", Message: "Database circuit breaker is open"}
	}
	start := time.Now()
	if err := d.wrapper.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "Database ping failed"}
	}
	latency := time.Since(start)
	stats := d.wrapper.Stats()

	result := CheckResult{
		Status:  StatusHealthy,
		Message: "Database healthy",
		Details: map[string]interface{}{
			"latency_ms":           latency.Milliseconds(),
			"open_connections":     stats.OpenConnections,
			"max_open_connections": stats.MaxOpenConnections,
			"in_use_connections":   stats.InUse,
		},
	}
	switch {
	case stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections:
		result.Status = StatusDegraded
		result.Message = "Database connection pool exhausted"
	case latency > slowThreshold:
		result.Status = StatusDegraded
		result.Message = "Database responding but with high latency"
	}
	return result
}

// CustomHealthChecker wraps a check function.
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomHealthChecker {
	return &CustomHealthChecker{name: name, critical: critical, timeout: timeout, checkFn: checkFn}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}
