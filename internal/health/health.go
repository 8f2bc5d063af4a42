// Package health probes the search pipeline's remote dependencies
// (Postgres, Redis, Elasticsearch, Qdrant) and serves the aggregate
// over /healthz. Only critical failures mark the service not ready;
// the pipeline itself degrades per branch, so most probes are
// informational.
package health

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the outcome of one probe.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Result is one completed probe.
type Result struct {
	Component string    `json:"component"`
	Critical  bool      `json:"critical"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latencyMs"`
	Timestamp time.Time `json:"timestamp"`
}

// Checker probes one dependency. Critical failures mark the service
// not ready; non-critical ones only degrade it.
type Checker interface {
	Name() string
	Critical() bool
	Timeout() time.Duration
	Check(ctx context.Context) Result
}

// Overview aggregates the latest probe results.
type Overview struct {
	Status     Status            `json:"status"`
	Message    string            `json:"message"`
	Ready      bool              `json:"ready"`
	Components map[string]Result `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}
