package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/maktabah/bahith/internal/circuitbreaker"
	"github.com/maktabah/bahith/internal/db"
)

const (
	probeTimeout = 5 * time.Second

	// Past this a dependency still answers but drags the whole
	// fan-out with it.
	slowPing     = 100 * time.Millisecond
	slowEndpoint = 250 * time.Millisecond
)

// DatabaseChecker probes the Postgres catalog pool. Metadata
// enrichment, translations and the author fallback all live there, so
// it is the one critical dependency.
type DatabaseChecker struct {
	client *db.Client
}

func NewDatabaseChecker(client *db.Client) *DatabaseChecker {
	return &DatabaseChecker{client: client}
}

func (c *DatabaseChecker) Name() string           { return "postgres" }
func (c *DatabaseChecker) Critical() bool         { return true }
func (c *DatabaseChecker) Timeout() time.Duration { return probeTimeout }

func (c *DatabaseChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := c.client.Ping(ctx); err != nil {
		return Result{
			Status:  StatusUnhealthy,
			Message: "postgres ping failed",
			Error:   err.Error(),
		}
	}

	r := Result{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	stats := c.client.Stats()
	switch {
	case stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections:
		r.Status = StatusDegraded
		r.Message = "connection pool exhausted"
	case time.Since(start) > slowPing:
		r.Status = StatusDegraded
		r.Message = "postgres responding slowly"
	}
	return r
}

// RedisChecker probes the cache/analytics Redis through its breaker.
// Losing Redis only costs the persistent embedding tier and the
// analytics stream, so it never blocks readiness.
type RedisChecker struct {
	wrapper *circuitbreaker.RedisWrapper
}

func NewRedisChecker(wrapper *circuitbreaker.RedisWrapper) *RedisChecker {
	return &RedisChecker{wrapper: wrapper}
}

func (c *RedisChecker) Name() string           { return "redis" }
func (c *RedisChecker) Critical() bool         { return false }
func (c *RedisChecker) Timeout() time.Duration { return probeTimeout }

func (c *RedisChecker) Check(ctx context.Context) Result {
	if c.wrapper.Open() {
		return Result{
			Status:  StatusUnhealthy,
			Message: "redis circuit breaker is open",
			Error:   "circuit breaker open",
		}
	}

	start := time.Now()
	if err := c.wrapper.Ping(ctx).Err(); err != nil {
		return Result{
			Status:  StatusUnhealthy,
			Message: "redis ping failed",
			Error:   err.Error(),
		}
	}

	r := Result{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if time.Since(start) > slowPing {
		r.Status = StatusDegraded
		r.Message = "redis responding slowly"
	}
	return r
}

// EndpointChecker probes an HTTP dependency with a bare GET: the
// Elasticsearch root and Qdrant's /readyz. Both engines degrade to the
// other when down, so neither is critical.
type EndpointChecker struct {
	name   string
	url    string
	client *http.Client
}

func NewEndpointChecker(name, url string) *EndpointChecker {
	return &EndpointChecker{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: probeTimeout},
	}
}

func (c *EndpointChecker) Name() string           { return c.name }
func (c *EndpointChecker) Critical() bool         { return false }
func (c *EndpointChecker) Timeout() time.Duration { return probeTimeout }

func (c *EndpointChecker) Check(ctx context.Context) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Result{
			Status:  StatusUnhealthy,
			Message: "invalid probe URL",
			Error:   err.Error(),
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%s unreachable", c.name),
			Error:   err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%s returned HTTP %d", c.name, resp.StatusCode),
			Error:   resp.Status,
		}
	}

	r := Result{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if time.Since(start) > slowEndpoint {
		r.Status = StatusDegraded
		r.Message = fmt.Sprintf("%s responding slowly", c.name)
	}
	return r
}
